package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/storage"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert 告警
type Alert struct {
	RuleID     string     `json:"ruleId"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Level      AlertLevel `json:"level"`
	Component  string     `json:"component"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// AlertRule 告警规则，Condition 返回非空消息表示触发
type AlertRule struct {
	ID        string
	Name      string
	Condition func(ctx context.Context) (string, bool)
	Level     AlertLevel
	Component string
}

// AlertReceiver 告警接收器接口
type AlertReceiver interface {
	SendAlert(alert *Alert) error
}

// AlertManager 周期检查规则
//
// 同一规则在恢复之前只通知一次；条件不再满足时自动标记为已恢复。
type AlertManager struct {
	mu        sync.RWMutex
	rules     []AlertRule
	receivers []AlertReceiver
	active    map[string]*Alert
	now       func() time.Time
	logger    *zap.Logger
}

// NewAlertManager 创建告警管理器
func NewAlertManager(logger *zap.Logger) *AlertManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertManager{
		active: make(map[string]*Alert),
		now:    time.Now,
		logger: logger.With(zap.String("component", "alert-manager")),
	}
}

// AddReceiver 添加告警接收器
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.receivers = append(am.receivers, receiver)
}

// AddRule 添加告警规则
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// ActiveAlerts 获取未恢复的告警
func (am *AlertManager) ActiveAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.active))
	for _, alert := range am.active {
		alerts = append(alerts, *alert)
	}
	return alerts
}

// CheckRules 检查所有规则
func (am *AlertManager) CheckRules(ctx context.Context) {
	am.mu.RLock()
	rules := append([]AlertRule(nil), am.rules...)
	am.mu.RUnlock()

	for _, rule := range rules {
		message, firing := rule.Condition(ctx)
		if firing {
			am.fire(rule, message)
		} else {
			am.resolve(rule.ID)
		}
	}
}

func (am *AlertManager) fire(rule AlertRule, message string) {
	am.mu.Lock()
	if _, exists := am.active[rule.ID]; exists {
		am.mu.Unlock()
		return
	}
	alert := &Alert{
		RuleID:    rule.ID,
		Title:     rule.Name,
		Message:   message,
		Level:     rule.Level,
		Component: rule.Component,
		Timestamp: am.now(),
	}
	am.active[rule.ID] = alert
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	for _, receiver := range receivers {
		if err := receiver.SendAlert(alert); err != nil {
			am.logger.Error("failed to send alert", zap.String("rule", rule.ID), zap.Error(err))
		}
	}
}

func (am *AlertManager) resolve(ruleID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	alert, exists := am.active[ruleID]
	if !exists {
		return
	}
	now := am.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	delete(am.active, ruleID)

	am.logger.Info("alert resolved", zap.String("rule", ruleID))
}

// StartMonitoring 按间隔检查直到 ctx 取消
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CheckRules(ctx)
		}
	}
}

// HighMemoryUsageRule 堆内存超过阈值
func HighMemoryUsageRule(thresholdMB float64) AlertRule {
	return AlertRule{
		ID:   "high_memory_usage",
		Name: "High Memory Usage",
		Condition: func(context.Context) (string, bool) {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			usage := float64(m.Alloc) / 1024 / 1024
			if usage <= thresholdMB {
				return "", false
			}
			return fmt.Sprintf("memory usage %.1f MB exceeds %.1f MB", usage, thresholdMB), true
		},
		Level:     AlertLevelWarning,
		Component: "memory",
	}
}

// DatabaseConnectionRule 存储不可用
func DatabaseConnectionRule(store storage.Store) AlertRule {
	return AlertRule{
		ID:   "database_connection",
		Name: "Database Connection",
		Condition: func(context.Context) (string, bool) {
			if err := store.Health(); err != nil {
				return "database connection failed: " + err.Error(), true
			}
			return "", false
		},
		Level:     AlertLevelCritical,
		Component: "database",
	}
}

// MailBacklogRule 待发送邮件积压超过阈值，通常意味着邮件服务商持续失败
func MailBacklogRule(repo storage.ClaimRepository, threshold int) AlertRule {
	return AlertRule{
		ID:   "mail_backlog",
		Name: "Mail Backlog",
		Condition: func(ctx context.Context) (string, bool) {
			pending, err := repo.ListClaimRecordsByStatus(ctx, domain.StatusWaitForSendMail, threshold+1)
			if err != nil || len(pending) <= threshold {
				return "", false
			}
			return fmt.Sprintf("more than %d claim mails waiting to be sent", threshold), true
		},
		Level:     AlertLevelWarning,
		Component: "mail-dispatcher",
	}
}

// LogAlertReceiver 日志告警接收器
type LogAlertReceiver struct {
	logger *zap.Logger
}

// NewLogAlertReceiver 创建日志告警接收器
func NewLogAlertReceiver(logger *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{logger: logger}
}

// SendAlert 发送告警到日志
func (lar *LogAlertReceiver) SendAlert(alert *Alert) error {
	fields := []zap.Field{
		zap.String("rule", alert.RuleID),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
		zap.String("alert_component", alert.Component),
		zap.Time("timestamp", alert.Timestamp),
	}
	if alert.Level == AlertLevelCritical {
		lar.logger.Error("CRITICAL ALERT", fields...)
	} else {
		lar.logger.Warn("WARNING ALERT", fields...)
	}
	return nil
}
