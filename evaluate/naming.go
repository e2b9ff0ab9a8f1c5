package evaluate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// names derives artifact paths from the input path. Only the extension of
// the input is replaced; low resolution artifacts are always JPEG.
type names struct {
	base    string
	ext     string
	scale   int
	quality int
}

func newNames(path string, scale, quality int) names {
	ext := filepath.Ext(path)
	n := names{base: strings.TrimSuffix(path, ext), ext: ext, scale: scale, quality: quality}
	if n.ext == "" {
		n.ext = ".png"
	}
	return n
}

func (n names) originThumbnail() string {
	return fmt.Sprintf("%s_origin_thumbnail_%d%s", n.base, n.scale, n.ext)
}

func (n names) source() string {
	return fmt.Sprintf("%s_source_%d.jpg", n.base, n.quality)
}

func (n names) sourceThumbnail() string {
	return fmt.Sprintf("%s_source_thumbnail_%d.jpg", n.base, n.quality)
}

func (n names) bicubic() string {
	return fmt.Sprintf("%s_bicubic_x%d_%d%s", n.base, n.scale, n.quality, n.ext)
}

func (n names) bicubicThumbnail() string {
	return fmt.Sprintf("%s_bicubic_x%d_thumbnail_%d%s", n.base, n.scale, n.quality, n.ext)
}

func (n names) model() string {
	return fmt.Sprintf("%s_ACNet_x%d_%d%s", n.base, n.scale, n.quality, n.ext)
}

func (n names) modelThumbnail() string {
	return fmt.Sprintf("%s_ACNet_x%d_thumbnail_%d%s", n.base, n.scale, n.quality, n.ext)
}
