package upstream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/recognizeim/internal/config"
	"github.com/example/recognizeim/internal/logging"
	"github.com/example/recognizeim/sdk/recognize"
)

// Client exposes the subset of the recognize.im API used by the gateway.
type Client interface {
	RecognizeBytes(ctx context.Context, data []byte, mode recognize.Mode, all bool) (*recognize.RecognitionResult, error)
	ImageInsertBytes(ctx context.Context, imageID, imageName string, data []byte) (recognize.Response, error)
	ImageDelete(ctx context.Context, imageID string) (recognize.Response, error)
	ImageUpdate(ctx context.Context, oldID, newID, newName string) (recognize.Response, error)
	IndexBuild(ctx context.Context) (recognize.Response, error)
	IndexStatus(ctx context.Context) (recognize.Response, error)
	UserLimits(ctx context.Context) (recognize.Response, error)
	ModeGet(ctx context.Context) (recognize.Response, error)
	ModeChange(ctx context.Context, mode recognize.Mode) (recognize.Response, error)
	Callback(ctx context.Context, url string) (recognize.Response, error)
}

// Dial returns an authenticated recognize.im client.
func Dial(ctx context.Context, cfg config.RecognizeConfig, logger *zap.Logger) (*recognize.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout(cfg))
	defer cancel()

	client, err := recognize.New(dialCtx, cfg.ClientID, cfg.APIKey, cfg.ClapiKey, Options(cfg, logger)...)
	if err != nil {
		logging.WithOperation(logger, "upstream.dial", "").Error("failed to authenticate with recognize.im",
			zap.Error(err),
			zap.String("soap_endpoint", cfg.SOAPEndpoint),
			zap.String("client_id", cfg.ClientID),
		)
		return nil, err
	}
	return client, nil
}

// Options translates configuration into client options.
func Options(cfg config.RecognizeConfig, logger *zap.Logger) []recognize.Option {
	return []recognize.Option{
		recognize.WithLogger(logger),
		recognize.WithTimeout(cfg.Timeout),
		recognize.WithSOAPEndpoint(cfg.SOAPEndpoint),
		recognize.WithRecognizeEndpoint(cfg.RecognizeEndpoint),
		recognize.WithImageLimits(cfg.CheckLimits),
	}
}

func dialTimeout(cfg config.RecognizeConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return recognize.DefaultTimeout
}

var _ Client = (*recognize.Client)(nil)
