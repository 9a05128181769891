// Package coordinator управляет жизненным циклом узлов и сессий
// синхронизации: реестр узлов с DID-индексом, создание и обновление
// сессий, мониторинг живости по heartbeat и журнал событий.
// Состояние координатора оперативное и не персистится: после рестарта
// узлы регистрируются заново.
package coordinator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/synckit/internal/events"
	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/models"
)

// NodeRegistration - параметры регистрации узла.
type NodeRegistration struct {
	ID           string   // ID уникальный идентификатор узла
	Address      string   // Address сетевой адрес узла
	Version      string   // Version версия протокола/ПО узла
	Capabilities []string // Capabilities множество возможностей узла
	Port         int      // Port сетевой порт узла
}

// Coordinator ведет реестры узлов и сессий синхронизации.
// Безопасен для конкурентного использования.
type Coordinator struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	provider   crypto.Provider
	bus        *events.Bus[models.SyncEvent]
	nodes      map[string]*models.SyncNode
	nodesByDID map[string]string
	sessions   map[string]*models.SyncSession
	events     []models.SyncEvent
	hbStop     chan struct{}
	hbWG       sync.WaitGroup
}

// New создает координатор синхронизации.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:     logger,
		bus:        events.NewBus[models.SyncEvent](logger),
		nodes:      make(map[string]*models.SyncNode),
		nodesByDID: make(map[string]string),
		sessions:   make(map[string]*models.SyncSession),
	}
}

// ConfigureCrypto подключает криптографическую capability: токены сессий
// и проверка capabilities узлов становятся доступны.
func (c *Coordinator) ConfigureCrypto(provider crypto.Provider) {
	c.mu.Lock()
	c.provider = provider
	c.mu.Unlock()
}

// RegisterNode регистрирует узел. Повторная регистрация того же id
// перезаписывает существующую запись. Новый узел получает статус online
// и свежий heartbeat.
func (c *Coordinator) RegisterNode(reg NodeRegistration) (*models.SyncNode, error) {
	if reg.ID == "" {
		return nil, fmt.Errorf("node id cannot be empty")
	}

	node := &models.SyncNode{
		LastHeartbeat: time.Now().UTC(),
		ID:            reg.ID,
		Address:       reg.Address,
		Version:       reg.Version,
		Status:        models.NodeStatusOnline,
		Capabilities:  append([]string(nil), reg.Capabilities...),
		Port:          reg.Port,
	}

	c.mu.Lock()
	c.storeNodeLocked(node)
	c.appendEventLocked(models.SyncEventNodeJoined, reg.ID, "", map[string]any{"address": reg.Address})
	c.mu.Unlock()

	c.logger.Info("Node registered", "node_id", reg.ID, "address", reg.Address, "port", reg.Port)

	return node.Clone(), nil
}

// RegisterAuthenticatedNode регистрирует узел с криптографической
// идентичностью. При подключенном провайдере публичные ключи узла
// сохраняются у него для последующей проверки подписей и адресного
// шифрования.
func (c *Coordinator) RegisterAuthenticatedNode(reg NodeRegistration, identity *models.NodeIdentity) (*models.SyncNode, error) {
	if reg.ID == "" {
		return nil, fmt.Errorf("node id cannot be empty")
	}
	if identity == nil || identity.DID == "" {
		return nil, fmt.Errorf("node identity requires a DID")
	}

	c.mu.RLock()
	provider := c.provider
	c.mu.RUnlock()

	if provider != nil && len(identity.PublicSigningKey) > 0 {
		if err := provider.RegisterPeerKeys(identity.DID, identity.PublicSigningKey, identity.PublicEncryptionKey); err != nil {
			return nil, fmt.Errorf("failed to register node keys: %w", err)
		}
	}

	identityCopy := *identity
	identityCopy.PublicSigningKey = append([]byte(nil), identity.PublicSigningKey...)
	identityCopy.PublicEncryptionKey = append([]byte(nil), identity.PublicEncryptionKey...)
	identityCopy.GrantedCapabilities = append([]string(nil), identity.GrantedCapabilities...)

	node := &models.SyncNode{
		LastHeartbeat: time.Now().UTC(),
		Identity:      &identityCopy,
		ID:            reg.ID,
		Address:       reg.Address,
		Version:       reg.Version,
		Status:        models.NodeStatusOnline,
		Capabilities:  append([]string(nil), reg.Capabilities...),
		Port:          reg.Port,
	}

	c.mu.Lock()
	c.storeNodeLocked(node)
	c.appendEventLocked(models.SyncEventNodeJoined, reg.ID, "", map[string]any{"did": identity.DID})
	c.mu.Unlock()

	c.logger.Info("Authenticated node registered", "node_id", reg.ID, "did", identity.DID)

	return node.Clone(), nil
}

// DeregisterNode удаляет узел из реестра.
func (c *Coordinator) DeregisterNode(id string) error {
	c.mu.Lock()
	node, ok := c.nodes[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	delete(c.nodes, id)
	if node.Identity != nil && node.Identity.DID != "" {
		delete(c.nodesByDID, node.Identity.DID)
	}
	c.appendEventLocked(models.SyncEventNodeLeft, id, "", nil)
	c.mu.Unlock()

	c.logger.Info("Node deregistered", "node_id", id)

	return nil
}

// UpdateHeartbeat штампует время последнего heartbeat узла.
// Узел в статусе offline возвращается в online: heartbeat -
// свидетельство доступности.
func (c *Coordinator) UpdateHeartbeat(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	node.LastHeartbeat = time.Now().UTC()
	if node.Status == models.NodeStatusOffline {
		node.Status = models.NodeStatusOnline
	}
	return nil
}

// UpdateNodeStatus устанавливает статус узла.
func (c *Coordinator) UpdateNodeStatus(id string, status models.NodeStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	node.Status = status
	return nil
}

// GetNode возвращает узел по идентификатору.
func (c *Coordinator) GetNode(id string) (*models.SyncNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	node, ok := c.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return node.Clone(), nil
}

// GetNodeByDID возвращает аутентифицированный узел по DID.
func (c *Coordinator) GetNodeByDID(did string) (*models.SyncNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.nodesByDID[did]
	if !ok {
		return nil, fmt.Errorf("%w: did %s", ErrNodeNotFound, did)
	}
	return c.nodes[id].Clone(), nil
}

// ListNodes возвращает все узлы без определенного порядка.
func (c *Coordinator) ListNodes() []*models.SyncNode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*models.SyncNode, 0, len(c.nodes))
	for _, node := range c.nodes {
		result = append(result, node.Clone())
	}
	return result
}

// GetEvents возвращает журнал событий координатора в порядке записи.
func (c *Coordinator) GetEvents() []models.SyncEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]models.SyncEvent(nil), c.events...)
}

// Subscribe возвращает канал событий координатора и функцию отписки.
// Медленный подписчик теряет события, а не блокирует координатор.
func (c *Coordinator) Subscribe(buffer int) (<-chan models.SyncEvent, func()) {
	return c.bus.Subscribe(buffer)
}

// Close останавливает мониторинг heartbeat и закрывает каналы подписчиков.
func (c *Coordinator) Close() {
	c.StopHeartbeatMonitoring()
	c.bus.Close()
}

// storeNodeLocked кладет узел в реестр и DID-индекс.
func (c *Coordinator) storeNodeLocked(node *models.SyncNode) {
	if existing, ok := c.nodes[node.ID]; ok && existing.Identity != nil && existing.Identity.DID != "" {
		delete(c.nodesByDID, existing.Identity.DID)
	}
	c.nodes[node.ID] = node
	if node.Identity != nil && node.Identity.DID != "" {
		c.nodesByDID[node.Identity.DID] = node.ID
	}
}

// appendEventLocked пишет событие в журнал и рассылает подписчикам.
func (c *Coordinator) appendEventLocked(eventType models.SyncEventType, nodeID, sessionID string, data map[string]any) {
	event := models.SyncEvent{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		NodeID:    nodeID,
		SessionID: sessionID,
		Data:      data,
	}
	c.events = append(c.events, event)
	c.bus.Publish(event)
}
