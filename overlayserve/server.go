/*
Copyright © 2023 the exposuremap authors.
This file is part of exposuremap.

exposuremap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

exposuremap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with exposuremap.  If not, see <http://www.gnu.org/licenses/>.*/

// Package overlayserve exposes the exposuremap engine over HTTP: the asset
// index, positioned PNG overlay surfaces, point-analysis results, a
// legend, and a websocket feed of view-state changes.
package overlayserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/ctessum/geom"
	"github.com/golang/groupcache/lru"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/exposuremap"
	"github.com/spatialmodel/exposuremap/internal/hash"
)

// Config holds server configuration.
type Config struct {
	// DataDir is the directory holding the asset index (assets.json)
	// and the per-asset grid documents.
	DataDir string

	// DataURL, if non-empty, selects a remote data source: the asset
	// index and grid documents are fetched from this URL prefix instead
	// of DataDir.
	DataURL string

	// StaticDir, if non-empty, is a directory of frontend files served
	// for non-API paths.
	StaticDir string

	// SearchRadiusKm overrides the point-analysis search radius. Zero
	// means the engine default.
	SearchRadiusKm float64

	// GridCacheEntries bounds the grid store's in-memory cache. Zero
	// means the store default.
	GridCacheEntries int

	// SurfaceCacheEntries bounds the cache of rendered overlay PNGs.
	// The default is 64.
	SurfaceCacheEntries int

	// Heatmap selects the legacy heat-raster overlay style instead of
	// graduated circles.
	Heatmap bool
}

// Server serves the overlay engine. It implements http.Handler.
type Server struct {
	Log logrus.FieldLogger

	index       *exposuremap.Index
	store       *exposuremap.Store
	search      *exposuremap.SearchIndex
	coordinator *exposuremap.Coordinator
	analyzer    *exposuremap.Analyzer
	notifier    *exposuremap.ViewNotifier

	surfaceMu sync.Mutex
	surfaces  *lru.Cache

	staticServer http.Handler
	upgrader     websocket.Upgrader
}

// NewServer loads the asset index from the configured data source and
// assembles the engine.
func NewServer(c *Config) (*Server, error) {
	var fetcher exposuremap.Fetcher = exposuremap.DirFetcher{Dir: c.DataDir}
	if c.DataURL != "" {
		fetcher = &exposuremap.HTTPFetcher{BaseURL: c.DataURL}
	}
	body, err := fetcher.Fetch(context.Background(), "assets.json")
	if err != nil {
		return nil, fmt.Errorf("overlayserve: reading asset index: %v", err)
	}
	idx, err := exposuremap.LoadIndex(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("overlayserve: loading asset index: %v", err)
	}

	store := exposuremap.NewStore(idx, fetcher)
	if c.GridCacheEntries > 0 {
		store.CacheEntries = c.GridCacheEntries
	}
	style := exposuremap.StyleCircles
	if c.Heatmap {
		style = exposuremap.StyleHeatmap
	}
	analyzer := exposuremap.NewAnalyzer(exposuremap.NewSearchIndex(idx), store)
	if c.SearchRadiusKm > 0 {
		analyzer.RadiusKm = c.SearchRadiusKm
	}
	surfaceEntries := c.SurfaceCacheEntries
	if surfaceEntries == 0 {
		surfaceEntries = 64
	}
	s := &Server{
		Log:         logrus.StandardLogger(),
		index:       idx,
		store:       store,
		search:      exposuremap.NewSearchIndex(idx),
		coordinator: exposuremap.NewCoordinator(store, style),
		analyzer:    analyzer,
		notifier:    exposuremap.NewViewNotifier(),
		surfaces:    lru.New(surfaceEntries),
	}
	if c.StaticDir != "" {
		s.staticServer = http.FileServer(http.Dir(os.ExpandEnv(c.StaticDir)))
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Log.WithFields(logrus.Fields{
		"url":  r.URL.String(),
		"addr": r.RemoteAddr,
	}).Info("overlayserve request")
	switch r.URL.Path {
	case "/api/assets":
		s.assetsHandler(w, r)
	case "/api/overlay":
		s.overlayHandler(w, r)
	case "/api/analyze":
		s.analyzeHandler(w, r)
	case "/api/legend":
		s.legendHandler(w, r)
	case "/api/view":
		s.viewHandler(w, r)
	default:
		if s.staticServer != nil {
			s.staticServer.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	}
}

// errJSON writes an asset-scoped error message for conditions the user can
// act on (for example by retrying).
func (s *Server) errJSON(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     err.Error(),
		"retryable": status == http.StatusBadGateway,
	})
}

// assetJSON mirrors the index document's asset layout.
type assetJSON struct {
	AssetID   string  `json:"asset_id"`
	Country   string  `json:"country"`
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`

	Bounds struct {
		Left   float64 `json:"left"`
		Bottom float64 `json:"bottom"`
		Right  float64 `json:"right"`
		Top    float64 `json:"top"`
	} `json:"bounds"`

	Stats               exposuremap.ExposureStats `json:"person_exposure_stats"`
	ConcentrationCounts exposuremap.PixelCounts   `json:"concentration_pixel_counts,omitempty"`
	PopulationCounts    exposuremap.PixelCounts   `json:"population_pixel_counts,omitempty"`
	ExposureCounts      exposuremap.PixelCounts   `json:"person_exposure_pixel_counts,omitempty"`
}

func (s *Server) assetsHandler(w http.ResponseWriter, r *http.Request) {
	assets := s.index.Assets()
	out := struct {
		Metadata exposuremap.IndexMetadata `json:"metadata"`
		Assets   []assetJSON               `json:"assets"`
	}{Metadata: s.index.Metadata}
	for _, a := range assets {
		aj := assetJSON{
			AssetID:             a.AssetID,
			Country:             a.Country,
			CenterLat:           a.Center.Y,
			CenterLon:           a.Center.X,
			Stats:               a.Stats,
			ConcentrationCounts: a.ConcentrationCounts,
			PopulationCounts:    a.PopulationCounts,
			ExposureCounts:      a.ExposureCounts,
		}
		aj.Bounds.Left = a.Box.West
		aj.Bounds.Bottom = a.Box.South
		aj.Bounds.Right = a.Box.East
		aj.Bounds.Top = a.Box.North
		out.Assets = append(out.Assets, aj)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// parseView extracts a view state from request parameters.
func parseView(r *http.Request) (exposuremap.ViewState, error) {
	var v exposuremap.ViewState
	vals := make(map[string]float64)
	for _, name := range []string{"lat", "lon", "zoom", "w", "h"} {
		str := r.FormValue(name)
		if str == "" {
			return v, fmt.Errorf("overlayserve: %s not specified", name)
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return v, fmt.Errorf("overlayserve: parsing %s: %v", name, err)
		}
		vals[name] = f
	}
	v.Center = geom.Point{X: vals["lon"], Y: vals["lat"]}
	v.Zoom = vals["zoom"]
	v.Width = int(vals["w"])
	v.Height = int(vals["h"])
	if v.Width <= 0 || v.Height <= 0 {
		return v, fmt.Errorf("overlayserve: viewport size must be positive")
	}
	return v, nil
}

// surfaceKey keys the rendered-surface cache.
type surfaceKey struct {
	Key  exposuremap.Key
	View exposuremap.ViewState
}

type cachedSurface struct {
	placement exposuremap.LayerPlacement
	png       []byte
}

func (s *Server) cachedSurface(k surfaceKey) (cachedSurface, bool) {
	s.surfaceMu.Lock()
	defer s.surfaceMu.Unlock()
	v, ok := s.surfaces.Get(hash.Hash(k))
	if !ok {
		return cachedSurface{}, false
	}
	return v.(cachedSurface), true
}

func (s *Server) storeSurface(k surfaceKey, cs cachedSurface) {
	s.surfaceMu.Lock()
	defer s.surfaceMu.Unlock()
	s.surfaces.Add(hash.Hash(k), cs)
}

// writePlacement communicates the surface placement through response
// headers so the PNG body stays unadorned.
func writePlacement(w http.ResponseWriter, pl exposuremap.LayerPlacement) {
	h := w.Header()
	h.Set("X-Overlay-Left", strconv.FormatFloat(pl.Left, 'g', -1, 64))
	h.Set("X-Overlay-Top", strconv.FormatFloat(pl.Top, 'g', -1, 64))
	h.Set("X-Overlay-Width", strconv.Itoa(pl.Width))
	h.Set("X-Overlay-Height", strconv.Itoa(pl.Height))
	h.Set("X-Overlay-Hidden", strconv.FormatBool(pl.Hidden))
}

func (s *Server) overlayHandler(w http.ResponseWriter, r *http.Request) {
	key := exposuremap.Key{Country: r.FormValue("country"), AssetID: r.FormValue("asset")}
	if key.Country == "" || key.AssetID == "" {
		s.errJSON(w, http.StatusBadRequest, fmt.Errorf("overlayserve: country and asset must be specified"))
		return
	}
	if s.index.Asset(key) == nil {
		s.errJSON(w, http.StatusNotFound, fmt.Errorf("overlayserve: unknown asset %s", key))
		return
	}
	view, err := parseView(r)
	if err != nil {
		s.errJSON(w, http.StatusBadRequest, err)
		return
	}

	if cs, ok := s.cachedSurface(surfaceKey{Key: key, View: view}); ok {
		writePlacement(w, cs.placement)
		if cs.placement.Hidden {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(cs.png)
		return
	}

	overlay, err := s.coordinator.Select(r.Context(), key)
	if err != nil {
		s.renderError(w, key, err)
		return
	}
	surface, err := overlay.Render(view)
	if err != nil {
		s.renderError(w, key, err)
		return
	}
	if surface.Hidden() {
		s.storeSurface(surfaceKey{Key: key, View: view},
			cachedSurface{placement: surface.Placement})
		writePlacement(w, surface.Placement)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var buf bytes.Buffer
	if _, err := surface.WriteTo(&buf); err != nil {
		s.errJSON(w, http.StatusInternalServerError, err)
		return
	}
	s.storeSurface(surfaceKey{Key: key, View: view},
		cachedSurface{placement: surface.Placement, png: buf.Bytes()})
	writePlacement(w, surface.Placement)
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// renderError maps engine errors to responses. A superseded request is
// not an error: the client that superseded it has a newer response coming
// and this one's body would be discarded anyway.
func (s *Server) renderError(w http.ResponseWriter, key exposuremap.Key, err error) {
	var geomErr exposuremap.GeometryError
	var dataErr exposuremap.DataUnavailable
	switch {
	case errors.Is(err, exposuremap.ErrStaleRequest):
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &geomErr):
		// The overlay stays hidden; the message tells the user which
		// asset's geometry is bad.
		writePlacement(w, exposuremap.LayerPlacement{Hidden: true})
		s.errJSON(w, http.StatusUnprocessableEntity, geomErr)
	case errors.As(err, &dataErr):
		writePlacement(w, exposuremap.LayerPlacement{Hidden: true})
		s.errJSON(w, http.StatusBadGateway, dataErr)
	default:
		s.Log.WithError(err).WithField("asset", key.String()).Error("overlayserve: rendering overlay")
		s.errJSON(w, http.StatusInternalServerError, err)
	}
}

// contributionJSON is one ranked entry in an analysis response.
type contributionJSON struct {
	AssetID           string  `json:"asset_id"`
	Country           string  `json:"country"`
	Concentration     float64 `json:"concentration"`
	DistanceKm        float64 `json:"distance_km"`
	Bearing           string  `json:"bearing"`
	PopulationAtPoint float64 `json:"population_at_point"`
	PersonExposure    float64 `json:"person_exposure"`
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	var p geom.Point
	for name, dst := range map[string]*float64{"lat": &p.Y, "lon": &p.X} {
		str := r.FormValue(name)
		if str == "" {
			s.errJSON(w, http.StatusBadRequest, fmt.Errorf("overlayserve: %s not specified", name))
			return
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			s.errJSON(w, http.StatusBadRequest, fmt.Errorf("overlayserve: parsing %s: %v", name, err))
			return
		}
		*dst = f
	}

	result, err := s.analyzer.Analyze(r.Context(), p)
	if err != nil {
		if errors.Is(err, exposuremap.ErrStaleRequest) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.errJSON(w, http.StatusInternalServerError, err)
		return
	}

	out := struct {
		State              string             `json:"state"`
		Reason             string             `json:"reason,omitempty"`
		Contributions      []contributionJSON `json:"contributions"`
		TotalConcentration float64            `json:"total_concentration"`
		Connectors         [][][2]float64     `json:"connectors,omitempty"`
		Errors             []string           `json:"errors,omitempty"`
	}{State: result.State.String()}
	switch result.Reason {
	case exposuremap.NoNearbyAssets:
		out.Reason = "no_nearby_assets"
	case exposuremap.NoCoverageAtPoint:
		out.Reason = "no_coverage_at_point"
	}
	for _, c := range result.Contributions {
		out.Contributions = append(out.Contributions, contributionJSON{
			AssetID:           c.Asset.AssetID,
			Country:           c.Asset.Country,
			Concentration:     c.Concentration,
			DistanceKm:        c.DistanceKm,
			Bearing:           c.Bearing,
			PopulationAtPoint: c.PopulationAtPoint,
			PersonExposure:    c.PersonExposure,
		})
	}
	out.TotalConcentration = result.TotalConcentration
	for _, l := range result.Connectors {
		conn := make([][2]float64, len(l))
		for i, pt := range l {
			conn[i] = [2]float64{pt.X, pt.Y}
		}
		out.Connectors = append(out.Connectors, conn)
	}
	for _, e := range result.AssetErrors {
		out.Errors = append(out.Errors, e.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
