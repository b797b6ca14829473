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

package overlayserve

import (
	"errors"
	"net/http"

	"github.com/ctessum/geom"
	"github.com/gorilla/websocket"

	"github.com/spatialmodel/exposuremap"
)

// viewMessage is one view-state update from the client.
type viewMessage struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Zoom   float64 `json:"zoom"`
	Width  int     `json:"w"`
	Height int     `json:"h"`
}

// placementMessage tells the client where the active overlay belongs
// after a view change, and whether its pixels changed so the client
// knows to refetch the image.
type placementMessage struct {
	Asset   string  `json:"asset,omitempty"`
	Country string  `json:"country,omitempty"`
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Hidden  bool    `json:"hidden"`
	Error   string  `json:"error,omitempty"`
}

// viewHandler feeds view-state changes from a map client into the
// engine over a websocket, answering each with the resulting placement
// of the active overlay.
func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithError(err).Error("overlayserve: upgrading view connection")
		return
	}
	defer conn.Close()
	for {
		var msg viewMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Log.WithError(err).Info("overlayserve: view connection closed")
			}
			return
		}
		if msg.Width <= 0 || msg.Height <= 0 {
			continue
		}
		v := exposuremap.ViewState{
			Center: geom.Point{X: msg.Lon, Y: msg.Lat},
			Zoom:   msg.Zoom,
			Width:  msg.Width,
			Height: msg.Height,
		}
		s.notifier.Update(v)
		if err := conn.WriteJSON(s.placeActive(v)); err != nil {
			s.Log.WithError(err).Info("overlayserve: writing placement")
			return
		}
	}
}

// placeActive renders the active overlay at view v and reports its
// placement. With no overlay mounted it reports a hidden layer.
func (s *Server) placeActive(v exposuremap.ViewState) placementMessage {
	overlay := s.coordinator.Active()
	if overlay == nil {
		return placementMessage{Hidden: true}
	}
	key := overlay.Key()
	msg := placementMessage{Asset: key.AssetID, Country: key.Country}
	surface, err := overlay.Render(v)
	if err != nil {
		msg.Hidden = true
		// A disposed overlay just means a newer selection took over
		// between Active and Render; the client will hear about it on
		// its next overlay fetch.
		if !errors.Is(err, exposuremap.ErrStaleRequest) {
			msg.Error = err.Error()
		}
		return msg
	}
	pl := surface.Placement
	msg.Left = pl.Left
	msg.Top = pl.Top
	msg.Width = pl.Width
	msg.Height = pl.Height
	msg.Hidden = pl.Hidden
	return msg
}
