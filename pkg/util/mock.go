package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI stands in for an InfluxDB write API when no server is configured.
// It keeps the points it is given so tests can inspect them.
type MockWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
}

func (m *MockWriteAPI) WriteRecord(line string) {}

func (m *MockWriteAPI) WritePoint(point *write.Point) {
	m.mu.Lock()
	m.points = append(m.points, point)
	m.mu.Unlock()
}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

func (m *MockWriteAPI) Errors() <-chan error { return nil }

// Points returns the names of the measurements written so far.
func (m *MockWriteAPI) Points() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.points))
	for i, p := range m.points {
		names[i] = p.Name()
	}
	return names
}
