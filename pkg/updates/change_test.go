package updates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestClassifyChange_HeadingRemovedIsMajor(t *testing.T) {
	oldContent := "# Title\n\n## Usage\n\ntext\n\n## Safety\n\nrules\n"
	newContent := "# Title\n\n## Usage\n\ntext\n"

	assert.Equal(t, ChangeMajor, ClassifyChange(oldContent, newContent, nil, nil))
}

func TestClassifyChange_HeadingRemovedOverridesDeclaredPatch(t *testing.T) {
	oldContent := "version: 1.0.0\n# Title\n## Safety\nrules\n"
	newContent := "version: 1.0.1\n# Title\n"

	// The author declared a patch bump, but a structural heading is gone.
	assert.Equal(t, ChangeMajor, ClassifyChange(oldContent, newContent, nil, nil))
}

func TestClassifyChange_RiskIncrease(t *testing.T) {
	base := "# Title\nbody\n"

	assert.Equal(t, ChangeMajor, ClassifyChange(base, base+"more\n", intPtr(10), intPtr(40)))
	// An increase of exactly the threshold is not major.
	assert.Equal(t, ChangePatch, ClassifyChange(base, base+"more\n", intPtr(10), intPtr(30)))
	// A decrease never forces major.
	assert.Equal(t, ChangePatch, ClassifyChange(base, base+"more\n", intPtr(40), intPtr(10)))
}

func TestClassifyChange_DependencyRemovedIsMajor(t *testing.T) {
	oldContent := "# Title\n\ndependencies:\n- ripgrep\n- jq\n\nbody\n"
	newContent := "# Title\n\ndependencies:\n- ripgrep\n\nbody\n"

	assert.Equal(t, ChangeMajor, ClassifyChange(oldContent, newContent, nil, nil))
}

func TestClassifyChange_DeclaredSemverDelta(t *testing.T) {
	tests := []struct {
		name     string
		oldV     string
		newV     string
		expected ChangeType
	}{
		{"major bump", "1.2.3", "2.0.0", ChangeMajor},
		{"minor bump", "1.2.3", "1.3.0", ChangeMinor},
		{"patch bump", "1.2.3", "1.2.4", ChangePatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldContent := "version: " + tt.oldV + "\n# Title\nbody\n"
			newContent := "version: " + tt.newV + "\n# Title\nbody changed\n"
			assert.Equal(t, tt.expected, ClassifyChange(oldContent, newContent, nil, nil))
		})
	}
}

func TestClassifyChange_DeclaredVersionOnOneSideIgnored(t *testing.T) {
	oldContent := "# Title\nbody\n"
	newContent := "version: 3.0.0\n# Title\nbody changed\n"

	assert.Equal(t, ChangePatch, ClassifyChange(oldContent, newContent, nil, nil))
}

func TestClassifyChange_AdditionsOnlyAreMinor(t *testing.T) {
	oldContent := "# Title\nbody\n"

	assert.Equal(t, ChangeMinor, ClassifyChange(oldContent, oldContent+"\n## Examples\nnew section\n", nil, nil))
	assert.Equal(t, ChangeMinor, ClassifyChange(oldContent, oldContent+"\ndependencies:\n- ripgrep\n", nil, nil))
}

func TestClassifyChange_TextualChangeIsPatch(t *testing.T) {
	assert.Equal(t, ChangePatch, ClassifyChange("# T\nold words\n", "# T\nnew words\n", nil, nil))
}

func TestClassifyChange_TotalOverAdversarialPairs(t *testing.T) {
	valid := map[ChangeType]bool{
		ChangeMajor: true, ChangeMinor: true, ChangePatch: true, ChangeUnknown: true,
	}

	pairs := [][2]string{
		{"", ""},
		{"", strings.Repeat("#", 100000)},
		{strings.Repeat("version: 1.0.0\n", 1000), "version: 9999999.0.0"},
		{"\x00\xff\xfe", "####\n----\n"},
		{strings.Repeat("- dep\n", 50000), ""},
	}
	for _, p := range pairs {
		got := ClassifyChange(p[0], p[1], nil, nil)
		assert.True(t, valid[got], "got %q for %q/%q", got, p[0][:min(20, len(p[0]))], p[1][:min(20, len(p[1]))])
	}
}
