package handlers

import (
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": a.now().Format(time.RFC3339),
	})
}

// Universes lists the preset catalog.
func (a *App) Universes(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"universes": a.Catalog.List()})
}
