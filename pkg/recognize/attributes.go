package recognize

import (
	"context"
	"fmt"
	"image"
	"os"

	// Registered for image.DecodeConfig.
	_ "image/jpeg"
	_ "image/png"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
)

// FileAttributeReader probes pixel dimensions of image assets on the local
// filesystem. It implements orchestrate.AttributeReader; failures are
// best-effort and the caller proceeds without a size.
type FileAttributeReader struct{}

// ReadAssetAttributes decodes only the image header of the asset file.
func (FileAttributeReader) ReadAssetAttributes(ctx context.Context, asset labeling.Asset) (int, int, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("open asset %s: %w", asset.ID, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode asset %s: %w", asset.ID, err)
	}
	return cfg.Width, cfg.Height, nil
}
