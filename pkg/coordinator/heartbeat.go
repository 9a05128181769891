package coordinator

import (
	"time"

	"github.com/iudanet/synckit/pkg/models"
)

const (
	// DefaultHeartbeatInterval - период сверки heartbeat по умолчанию
	DefaultHeartbeatInterval = 5 * time.Second
	// StalenessThreshold - порог давности heartbeat, после которого
	// узел считается offline
	StalenessThreshold = 30 * time.Second
)

// StartHeartbeatMonitoring запускает периодическую сверку heartbeat
// узлов. Повторный вызов при уже работающем мониторинге - no-op.
// Неположительный интервал заменяется DefaultHeartbeatInterval.
func (c *Coordinator) StartHeartbeatMonitoring(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	c.mu.Lock()
	if c.hbStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.hbStop = stop
	c.mu.Unlock()

	c.hbWG.Add(1)
	go c.heartbeatLoop(interval, stop)

	c.logger.Info("Heartbeat monitoring started", "interval", interval.String())
}

// StopHeartbeatMonitoring останавливает сверку heartbeat и дожидается
// завершения фоновой горутины. Идемпотентен.
func (c *Coordinator) StopHeartbeatMonitoring() {
	c.mu.Lock()
	stop := c.hbStop
	c.hbStop = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	c.hbWG.Wait()

	c.logger.Info("Heartbeat monitoring stopped")
}

// CheckNodeHealth выполняет одну сверку: узлы с heartbeat свежее порога
// получают статус online, остальные - offline. Обновляются только узлы,
// чей выведенный статус отличается от текущего.
func (c *Coordinator) CheckNodeHealth() {
	now := time.Now().UTC()

	type transition struct {
		nodeID   string
		from     models.NodeStatus
		to       models.NodeStatus
		downtime time.Duration
	}
	var transitions []transition

	c.mu.Lock()
	for _, node := range c.nodes {
		downtime := now.Sub(node.LastHeartbeat)
		derived := models.NodeStatusOnline
		if downtime >= StalenessThreshold {
			derived = models.NodeStatusOffline
		}
		if node.Status == derived {
			continue
		}
		transitions = append(transitions, transition{
			nodeID:   node.ID,
			from:     node.Status,
			to:       derived,
			downtime: downtime,
		})
		node.Status = derived
	}
	c.mu.Unlock()

	for _, t := range transitions {
		c.logger.Info("Node status changed by heartbeat check",
			"node_id", t.nodeID,
			"from", string(t.from),
			"to", string(t.to),
			"downtime_ms", t.downtime.Milliseconds())
	}
}

// heartbeatLoop - фоновая горутина мониторинга.
func (c *Coordinator) heartbeatLoop(interval time.Duration, stop <-chan struct{}) {
	defer c.hbWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.CheckNodeHealth()
		}
	}
}
