package weather

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const digestHeader = "🔔 Your daily weather digest"

// Source is the subset of Client the digest needs.
type Source interface {
	Current(ctx context.Context, city string) (Current, error)
	Forecast(ctx context.Context, city string) (Forecast, error)
}

// Digest builds the daily broadcast text for a city.
type Digest struct {
	src Source
	log *zap.Logger
}

// NewDigest creates a digest content provider.
func NewDigest(src Source, log *zap.Logger) *Digest {
	return &Digest{src: src, log: log}
}

// FetchContent returns the digest for city. Current conditions are required;
// the evening outlook is appended when the forecast call succeeds.
func (d *Digest) FetchContent(ctx context.Context, city string) (string, error) {
	cur, err := d.src.Current(ctx, city)
	if err != nil {
		return "", fmt.Errorf("current weather for %q: %w", city, err)
	}
	text := digestHeader + "\n\n" + FormatCurrent(cur)

	fc, err := d.src.Forecast(ctx, city)
	if err != nil {
		d.log.Warn("digest forecast unavailable", zap.String("city", city), zap.Error(err))
		return text, nil
	}
	if len(fc.Slots) > 0 {
		text += "\n\n" + FormatEvening(fc)
	}
	return text, nil
}
