package speech

import "strings"

// VoiceProfile describes one translate TTS voice variant.
type VoiceProfile struct {
	Name     string
	Language string // tl query parameter
	Host     string // translate host serving the accent
	Slow     bool
}

var voiceProfiles = map[string]VoiceProfile{
	"it":      {Name: "it", Language: "it", Host: "translate.google.com"},
	"it-it":   {Name: "it-it", Language: "it", Host: "translate.google.it"},
	"it-slow": {Name: "it-slow", Language: "it", Host: "translate.google.com", Slow: true},
	"en":      {Name: "en", Language: "en", Host: "translate.google.com"},
	"en-slow": {Name: "en-slow", Language: "en", Host: "translate.google.com", Slow: true},
}

var voiceAliases = map[string]string{
	"italian":      "it",
	"it_it":        "it-it",
	"italy":        "it-it",
	"it_slow":      "it-slow",
	"slow":         "it-slow",
	"english":      "en",
	"en_slow":      "en-slow",
	"default":      "it",
	"tutor":        "it",
	"tutor-gentle": "it-slow",
}

// ResolveVoice maps a requested voice name onto a known profile. Unknown
// names fall through to the configured fallback, then to Italian.
func ResolveVoice(requested, fallback string) VoiceProfile {
	for _, name := range []string{requested, fallback, "it"} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if alias, ok := voiceAliases[name]; ok {
			name = alias
		}
		if profile, ok := voiceProfiles[name]; ok {
			return profile
		}
	}
	return voiceProfiles["it"]
}

// VoiceNames lists the selectable profile names.
func VoiceNames() []string {
	names := make([]string, 0, len(voiceProfiles))
	for name := range voiceProfiles {
		names = append(names, name)
	}
	return names
}
