package store

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// LaneNetwork is the reference bike lane geometry as GeoJSON bytes. The core
// passes it through for display and never inspects it.
type LaneNetwork struct {
	data []byte
}

// NewLaneNetwork wraps GeoJSON bytes after checking that they decode.
func NewLaneNetwork(data []byte) (LaneNetwork, error) {
	if err := validateGeoJSON(data); err != nil {
		return LaneNetwork{}, err
	}
	return LaneNetwork{data: append([]byte(nil), data...)}, nil
}

// Bytes returns a copy of the GeoJSON document.
func (n LaneNetwork) Bytes() []byte {
	return append([]byte(nil), n.data...)
}

// Size returns the document length in bytes.
func (n LaneNetwork) Size() int { return len(n.data) }

// WriteTo writes the document unchanged.
func (n LaneNetwork) WriteTo(w io.Writer) (int64, error) {
	written, err := w.Write(n.data)
	return int64(written), err
}

// LoadLanes reads the lane network from a GeoJSON file or, for a .shp path,
// converts an ESRI shapefile to GeoJSON.
func LoadLanes(ctx context.Context, path string) (LaneNetwork, error) {
	if path == "" {
		return LaneNetwork{}, eris.New("store: lanes path is empty")
	}
	if err := ctx.Err(); err != nil {
		return LaneNetwork{}, eris.Wrap(err, "store: load lanes")
	}

	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		data, err = ShapefileToGeoJSON(path)
		if err != nil {
			return LaneNetwork{}, err
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return LaneNetwork{}, eris.Wrap(err, "store: read lanes file")
		}
	}

	ln, err := NewLaneNetwork(data)
	if err != nil {
		return LaneNetwork{}, err
	}
	zap.L().Debug("store: lane network loaded", zap.String("path", path), zap.Int("bytes", ln.Size()))
	return ln, nil
}

// validateGeoJSON checks that data is a GeoJSON object go-geom can decode.
func validateGeoJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return eris.Wrap(err, "store: parse lane network")
	}

	switch head.Type {
	case "":
		return eris.New("store: lane network has no GeoJSON type")
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return eris.Wrap(err, "store: decode lane feature collection")
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return eris.Wrap(err, "store: decode lane feature")
		}
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return eris.Wrap(err, "store: decode lane geometry")
		}
	}
	return nil
}
