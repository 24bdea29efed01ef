package synth

import "strings"

// Synthesis engines. The cloning engine reproduces the source speaker from a
// prompt sample; the neural engine uses a curated voice picked by language
// and detected gender.
const (
	EngineClone  = "clone"
	EngineNeural = "neural"
)

// VoiceProfile is the synthesis identity assigned to one speaker for the
// whole job. All of a speaker's segments use the same profile so the dub
// stays consistent across the video.
type VoiceProfile struct {
	Engine         string
	Voice          string
	PromptAudioURL string
}

// curatedVoices maps target language to neural voice names by gender.
var curatedVoices = map[string]map[string]string{
	"hi": {"male": "hi-IN-MadhurNeural", "female": "hi-IN-SwaraNeural"},
	"kn": {"male": "kn-IN-GaganNeural", "female": "kn-IN-SapnaNeural"},
	"te": {"male": "te-IN-MohanNeural", "female": "te-IN-ShrutiNeural"},
	"ta": {"male": "ta-IN-ValluvarNeural", "female": "ta-IN-PallaviNeural"},
	"ml": {"male": "ml-IN-MidhunNeural", "female": "ml-IN-SobhanaNeural"},
	"mr": {"male": "mr-IN-ManoharNeural", "female": "mr-IN-AarohiNeural"},
	"gu": {"male": "gu-IN-NiranjanNeural", "female": "gu-IN-DhwaniNeural"},
	"bn": {"male": "bn-BD-PradeepNeural", "female": "bn-BD-NabanitaNeural"},
	"ur": {"male": "ur-PK-UzairNeural", "female": "ur-PK-UzmaNeural"},
	"en": {"male": "en-US-ChristopherNeural", "female": "en-US-JennyNeural"},
	"es": {"male": "es-ES-AlvaroNeural", "female": "es-ES-ElviraNeural"},
	"fr": {"male": "fr-FR-HenriNeural", "female": "fr-FR-DeniseNeural"},
}

var defaultVoices = map[string]string{
	"male":   "en-US-ChristopherNeural",
	"female": "en-US-JennyNeural",
}

// CuratedVoice returns the neural voice for a language and gender. Unknown
// genders fall back to the male voice, unknown languages to English.
func CuratedVoice(language, gender string) string {
	voices, ok := curatedVoices[language]
	if !ok {
		voices = defaultVoices
	}
	g := strings.ToLower(gender)
	if v, ok := voices[g]; ok {
		return v
	}
	return voices["male"]
}

// ProfileResolver assigns voice profiles per speaker. The cloning engine is
// used only when it supports the target language; everything else gets a
// curated neural voice.
type ProfileResolver struct {
	cloneLanguages map[string]bool
	profiles       map[string]VoiceProfile
}

// NewProfileResolver creates a resolver for one job.
func NewProfileResolver(cloneLanguages []string) *ProfileResolver {
	langs := make(map[string]bool, len(cloneLanguages))
	for _, l := range cloneLanguages {
		langs[l] = true
	}
	return &ProfileResolver{
		cloneLanguages: langs,
		profiles:       make(map[string]VoiceProfile),
	}
}

// Resolve returns the profile for a speaker, creating it on first use.
func (r *ProfileResolver) Resolve(speakerID, targetLang, gender, promptAudioURL string) VoiceProfile {
	if p, ok := r.profiles[speakerID]; ok {
		return p
	}
	var p VoiceProfile
	if r.cloneLanguages[targetLang] && promptAudioURL != "" {
		p = VoiceProfile{Engine: EngineClone, PromptAudioURL: promptAudioURL}
	} else {
		p = VoiceProfile{Engine: EngineNeural, Voice: CuratedVoice(targetLang, gender)}
	}
	r.profiles[speakerID] = p
	return p
}
