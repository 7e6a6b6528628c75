package api

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const measurementsCSV = `Date,Monitoring_Station,Province,Latitude,Longitude,Water_Temperature_C,pH,Dissolved_Oxygen_mg_L,Nitrate_mg_L
2024-01-01,Yangtze A,Hubei,30.0,114.0,10,7.0,8.0,1.2
2024-01-01,Pearl B,Guangdong,23.1,113.2,18,6.8,7.5,2.0
2024-01-02,Yangtze A,Hubei,30.0,114.0,11,7.1,8.1,1.1
2024-01-02,Pearl B,Guangdong,23.1,113.2,19,6.9,7.6,
2024-01-03,Yellow C,Henan,34.7,113.6,8,7.4,9.0,3.0
`

// tableSource serves a fixed CSV through the real cleaner
type tableSource struct {
	csv string
	err error
}

func (s tableSource) Load(context.Context) (*entities.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	raw, err := integration.ReadCSV(strings.NewReader(s.csv))
	if err != nil {
		return nil, err
	}
	return integration.NewCleaner(nil).Clean(raw)
}

func unavailableSource() tableSource {
	return tableSource{err: fmt.Errorf("%w: file data/missing.csv not found", entities.ErrDataUnavailable)}
}

func newUseCase(t *testing.T, src usecases.MeasurementSource) *usecases.ReportUseCase {
	t.Helper()
	uc := usecases.NewReportUseCase(src, 6, zaptest.NewLogger(t))
	require.NotNil(t, uc)
	return uc
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}
