package scanner

import "regexp"

// patternCategory groups the patterns for one finding type. Every regex in
// the catalogue uses bounded repetition; nested unbounded quantifiers are
// not allowed here.
type patternCategory struct {
	kind     FindingType
	severity Severity
	patterns []*regexp.Regexp
}

// catalogue is the fixed, finite set of pattern categories evaluated by
// Scan. Order is stable so reports are deterministic.
var catalogue = []patternCategory{
	{
		kind:     FindingJailbreak,
		severity: SeverityCritical,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore (all |any )?(previous|prior|above|earlier) (instructions|prompts?|rules|directives)`),
			regexp.MustCompile(`(?i)disregard (all |your |any )?(previous|prior|earlier|system) (instructions|prompts?|rules)`),
			regexp.MustCompile(`(?i)you are now (dan|unrestricted|in developer mode|free of (all |any )?restrictions)`),
			regexp.MustCompile(`(?i)pretend (that )?you (have no|are not bound by) (restrictions|rules|guidelines)`),
			regexp.MustCompile(`(?i)do anything now`),
		},
	},
	{
		kind:     FindingPromptLeak,
		severity: SeverityCritical,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(reveal|print|show|repeat|output|display) (your |the |all )?(system prompt|initial instructions|hidden instructions|original instructions)`),
			regexp.MustCompile(`(?i)what (is|are) your (system prompt|initial instructions)`),
		},
	},
	{
		kind:     FindingExfiltration,
		severity: SeverityCritical,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(curl|wget|httpie|fetch)[ \t]{1,8}[^ \t]{0,64}https?://`),
			regexp.MustCompile(`(?i)send (the |all |your )?(file|data|contents?|credentials|secrets?|keys?|tokens?) to [^ \t]{1,128}`),
			regexp.MustCompile(`(?i)(upload|post|exfiltrate)[ \t]{1,8}[^ \t]{0,64}(credentials|secrets?|\.env|id_rsa)`),
			regexp.MustCompile(`(?i)base64[ \t]{1,8}(-w0 )?[^ \t]{0,64}\|[ \t]{0,8}(curl|wget|nc)`),
		},
	},
	{
		kind:     FindingSocialEngineering,
		severity: SeverityMedium,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(verify|confirm|re-?enter) your (password|credentials|account|api key)`),
			regexp.MustCompile(`(?i)this is (your|the) (administrator|admin team|it department|security team)`),
			regexp.MustCompile(`(?i)urgent(ly)?[:.]? (action|verification|response) (is )?required`),
		},
	},
	{
		kind:     FindingPrivilegeEscalation,
		severity: SeverityHigh,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bsudo[ \t]{1,8}[a-z/]`),
			regexp.MustCompile(`chmod[ \t]{1,8}(-R[ \t]{1,8})?777`),
			regexp.MustCompile(`(?i)\bsetuid\b`),
			regexp.MustCompile(`(?i)run (this |it )?as (root|administrator)`),
			regexp.MustCompile(`(?i)--privileged\b`),
		},
	},
	{
		kind:     FindingSuspiciousCode,
		severity: SeverityHigh,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\beval[ \t]{0,4}\(`),
			regexp.MustCompile(`(?i)\bexec[ \t]{0,4}\(`),
			regexp.MustCompile(`(?i)child_process|subprocess\.(run|popen|call)|os\.system`),
			regexp.MustCompile(`rm[ \t]{1,8}-rf[ \t]{1,8}[/~]`),
			regexp.MustCompile(`(?i)powershell[ \t]{1,8}-enc(odedcommand)?\b`),
			regexp.MustCompile(`(?i)\bnc[ \t]{1,8}-[el]{1,4}\b`),
		},
	},
	{
		kind:     FindingSensitivePath,
		severity: SeverityHigh,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(~|/home/[a-zA-Z0-9_-]{1,32}|/root)/\.(ssh|aws|gnupg|netrc|npmrc|kube)\b`),
			regexp.MustCompile(`/etc/(passwd|shadow|sudoers)\b`),
			regexp.MustCompile(`(?i)\bid_rsa\b|\bid_ed25519\b`),
			regexp.MustCompile(`(?i)\.env\b.{0,40}(secret|key|token|password)`),
			regexp.MustCompile(`(?i)\bcredentials\.json\b`),
		},
	},
	{
		kind:     FindingExternalURL,
		severity: SeverityLow,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`https?://[^\s"'<>\)]{4,200}`),
		},
	},
}

// quickMarkers are the highest-signal lowercase substrings used by
// QuickCheck. Kept short; substring search is the whole point.
var quickMarkers = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"system prompt",
	"do anything now",
	"rm -rf /",
	"id_rsa",
	"/etc/shadow",
}
