// Package manifest builds the master HLS playlist that ties a video's
// collected variant playlists together, using github.com/grafov/m3u8 the
// way livepeer's catalyst-api clients package builds its master manifests.
package manifest

import (
	"fmt"
	"sort"

	"github.com/grafov/m3u8"

	"github.com/hszk-dev/streamcast/internal/model"
)

// Variant is one collected playlist ready to be listed in the master
// manifest: the static configuration for the rendition plus the relative
// path its playlist was collected to (e.g. "720p/playlist.m3u8").
type Variant struct {
	Spec         model.Variant
	PlaylistPath string
}

// BuildMaster renders a master playlist listing variants ordered by
// descending height, so players default to the highest available
// rendition. It returns the rendered text; the caller is responsible for
// writing it to the video's HLS directory.
func BuildMaster(variants []Variant) (string, error) {
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Spec.Height > sorted[j].Spec.Height
	})

	master := m3u8.NewMasterPlaylist()
	for _, v := range sorted {
		bandwidth := v.Spec.BandwidthBPS()
		resolution := fmt.Sprintf("%dx%d", v.Spec.Height, v.Spec.Height)

		err := master.Append(
			v.PlaylistPath,
			&m3u8.MediaPlaylist{},
			m3u8.VariantParams{
				Name:       v.Spec.Label,
				Bandwidth:  uint32(bandwidth),
				Resolution: resolution,
			},
		)
		if err != nil {
			return "", fmt.Errorf("append variant %s to master playlist: %w", v.Spec.Label, err)
		}
	}

	return master.String(), nil
}
