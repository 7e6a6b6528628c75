package openai

import (
	"fmt"
	"strings"

	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/usecases"
)

// Request converts the agent's answer into a report request. Empty dates
// and an empty station list keep the report defaults.
func (a *AgentResponse) Request() (usecases.Request, error) {
	var req usecases.Request
	if s := strings.TrimSpace(a.StartDate); s != "" {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("start date: %w", err)
		}
		req.From = d
	}
	if s := strings.TrimSpace(a.EndDate); s != "" {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("end date: %w", err)
		}
		req.To = d
	}
	for _, st := range a.Stations {
		if st = strings.TrimSpace(st); st != "" {
			req.Stations = append(req.Stations, st)
		}
	}
	return req, nil
}
