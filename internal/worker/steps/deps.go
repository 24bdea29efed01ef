package steps

import (
	"context"

	"github.com/VishnuKaranth/Dubbing-Software/internal/asr"
	"github.com/VishnuKaranth/Dubbing-Software/internal/config"
	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/ingest"
	"github.com/VishnuKaranth/Dubbing-Software/internal/media"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/synth"
	"github.com/VishnuKaranth/Dubbing-Software/internal/terms"
	"github.com/VishnuKaranth/Dubbing-Software/internal/translate"

	"go.uber.org/zap"
)

// Pipeline step names. Each maps to one queue and one processor.
const (
	StepDownload   = "download"
	StepSeparate   = "separate"
	StepTranscribe = "transcribe"
	StepTranslate  = "translate"
	StepSynthesize = "synthesize"
	StepSync       = "sync"
	StepRemix      = "remix"
	StepCleanup    = "cleanup"
)

// Publisher defines the minimal behaviour for publishing next-step messages.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// Deps groups common dependencies shared across step processors.
type Deps struct {
	DB        *database.DB
	Storage   storage.ObjectStorage
	Publisher Publisher
	Config    *config.Config
	Logger    *zap.Logger

	Downloader  *ingest.Downloader
	Transcriber asr.Transcriber
	Translator  translate.Translator
	Synth       synth.Synthesizer
	Media       *media.Engine
	Separator   *media.Separator
	Terms       *terms.Codec
}
