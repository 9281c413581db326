package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 组件状态
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusUnknown   = "unknown"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// Probe 检查一个组件，返回状态和说明
type Probe func(ctx context.Context) (status, message string)

// Report 汇总结果
type Report struct {
	Status     string          `json:"status"`
	Components []*HealthStatus `json:"components"`
}

// Monitor 组件健康登记表
type Monitor struct {
	components map[string]*HealthStatus
	probes     map[string]Probe
	mutex      sync.RWMutex
	log        *zap.Logger
}

// NewMonitor 创建新的监控系统
func NewMonitor(log *zap.Logger) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		probes:     make(map[string]Probe),
		log:        log.Named("monitor"),
	}
}

// RegisterComponent 注册组件及其探针
func (m *Monitor) RegisterComponent(component string, probe Probe) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: time.Now(),
	}
	if probe != nil {
		m.probes[component] = probe
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.components[component]; !exists {
		m.components[component] = &HealthStatus{
			Component: component,
		}
	}

	oldStatus := m.components[component].Status
	m.components[component].Status = status
	m.components[component].LastChecked = time.Now()
	m.components[component].Message = message

	// 状态变为不健康时告警
	if oldStatus != status && status != StatusHealthy {
		m.log.Warn("组件状态异常",
			zap.String("component", component),
			zap.String("from", oldStatus),
			zap.String("to", status),
			zap.String("message", message),
		)
	}
}

// GetStatus 获取组件状态
func (m *Monitor) GetStatus(component string) *HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		copied := *status
		return &copied
	}

	return nil
}

// GetAllStatus 获取所有组件状态，按名称排序
func (m *Monitor) GetAllStatus() []*HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]*HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		copied := *status
		statuses = append(statuses, &copied)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})

	return statuses
}

// Check 运行所有探针并返回汇总，只有全部组件健康时整体才健康
func (m *Monitor) Check(ctx context.Context) Report {
	m.mutex.RLock()
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mutex.RUnlock()

	for name, probe := range probes {
		status, message := probe(ctx)
		m.UpdateStatus(name, status, message)
	}

	report := Report{Status: StatusHealthy, Components: m.GetAllStatus()}
	for _, c := range report.Components {
		if c.Status != StatusHealthy {
			report.Status = StatusUnhealthy
			break
		}
	}
	return report
}
