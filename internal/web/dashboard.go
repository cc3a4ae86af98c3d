package web

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/jdholdren/anisync/internal/service"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) error {
	var runs []RunResp
	if s.history != nil {
		recent, err := s.history.RecentRuns(r.Context(), "", 10)
		if err != nil {
			return err
		}
		for _, run := range recent {
			runs = append(runs, runResp(run))
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return dashboardTmpl.Execute(w, struct {
		Status service.Status
		Runs   []RunResp
	}{
		Status: s.svc.Status(),
		Runs:   runs,
	})
}
