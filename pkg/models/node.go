package models

import "time"

// NodeStatus описывает текущее состояние узла синхронизации.
type NodeStatus string

const (
	// NodeStatusOnline узел доступен и отвечает на heartbeat
	NodeStatusOnline NodeStatus = "online"
	// NodeStatusOffline узел не отвечает дольше допустимого порога
	NodeStatusOffline NodeStatus = "offline"
	// NodeStatusSyncing узел участвует в активной сессии синхронизации
	NodeStatusSyncing NodeStatus = "syncing"
)

// NodeIdentity представляет криптографическую идентичность узла.
// Заполняется только для узлов, зарегистрированных с DID.
type NodeIdentity struct {
	DID                 string   `json:"did"`                           // DID декентрализованный идентификатор узла
	PublicSigningKey    []byte   `json:"publicSigningKey,omitempty"`    // PublicSigningKey публичный ключ подписи
	PublicEncryptionKey []byte   `json:"publicEncryptionKey,omitempty"` // PublicEncryptionKey публичный ключ шифрования
	GrantedCapabilities []string `json:"grantedCapabilities,omitempty"` // GrantedCapabilities выданные узлу capabilities
}

// SyncNode представляет узел, участвующий в синхронизации.
// Узел создается регистрацией в SyncCoordinator, изменяется обновлениями
// статуса и heartbeat, удаляется дерегистрацией.
type SyncNode struct {
	LastHeartbeat time.Time     `json:"lastHeartbeat"`      // LastHeartbeat время последнего heartbeat
	Identity      *NodeIdentity `json:"identity,omitempty"` // Identity опциональная криптографическая идентичность
	ID            string        `json:"id"`                 // ID уникальный идентификатор узла
	Address       string        `json:"address"`            // Address сетевой адрес узла
	Version       string        `json:"version"`            // Version версия протокола/ПО узла
	Status        NodeStatus    `json:"status"`             // Status текущий статус узла
	Capabilities  []string      `json:"capabilities"`       // Capabilities множество возможностей узла
	Port          int           `json:"port"`               // Port сетевой порт узла
}

// Clone создает глубокую копию узла.
func (n *SyncNode) Clone() *SyncNode {
	clone := *n

	clone.Capabilities = append([]string(nil), n.Capabilities...)

	if n.Identity != nil {
		identity := *n.Identity
		identity.PublicSigningKey = append([]byte(nil), n.Identity.PublicSigningKey...)
		identity.PublicEncryptionKey = append([]byte(nil), n.Identity.PublicEncryptionKey...)
		identity.GrantedCapabilities = append([]string(nil), n.Identity.GrantedCapabilities...)
		clone.Identity = &identity
	}

	return &clone
}

// HasCapability проверяет наличие capability у узла.
func (n *SyncNode) HasCapability(capability string) bool {
	for _, c := range n.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
