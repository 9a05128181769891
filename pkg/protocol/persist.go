package protocol

import (
	"context"

	"github.com/iudanet/synckit/internal/persist"
	"github.com/iudanet/synckit/pkg/api"
	"github.com/iudanet/synckit/pkg/storage"
)

// protocolSnapshot - форма протокольного состояния в storage.
type protocolSnapshot struct {
	Handshakes map[string]*api.Handshake `json:"handshakes"` // Handshakes записи рукопожатий по узлам
	Messages   []*api.SyncMessage        `json:"messages"`   // Messages журнал сообщений
	Errors     []ErrorRecord             `json:"errors"`     // Errors журнал протокольных ошибок
}

// snapshot строит сериализуемый снимок состояния для persist.Saver.
func (p *Protocol) snapshot() any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := protocolSnapshot{
		Handshakes: make(map[string]*api.Handshake, len(p.handshakes)),
		Messages:   append([]*api.SyncMessage(nil), p.messages...),
		Errors:     append([]ErrorRecord(nil), p.errorLog...),
	}
	for nodeID, handshake := range p.handshakes {
		snap.Handshakes[nodeID] = handshake
	}
	return snap
}

// loadPersistedState восстанавливает журнал из storage. Загрузка
// защитная: каждая запись проверяется отдельно, нечитаемые и невалидные
// записи пропускаются с предупреждением, а не валят загрузку целиком.
func (p *Protocol) loadPersistedState(ctx context.Context, store storage.Store) {
	var snap protocolSnapshot
	if !persist.Load(ctx, store, storageKey, p.logger, &snap) {
		return
	}

	restored := 0
	skipped := 0

	p.mu.Lock()
	for _, msg := range snap.Messages {
		if msg == nil {
			skipped++
			continue
		}
		if result := p.ValidateMessage(msg); !result.Valid {
			skipped++
			continue
		}
		if _, exists := p.byID[msg.MessageID]; exists {
			skipped++
			continue
		}

		p.messages = append(p.messages, msg)
		p.byID[msg.MessageID] = msg
		restored++

		// Счетчик идентификаторов продолжается с места остановки
		if seq, ok := parseMessageSeq(msg.MessageID); ok {
			p.seq.Observe(seq)
		}
	}

	for nodeID, handshake := range snap.Handshakes {
		if nodeID == "" || handshake == nil {
			skipped++
			continue
		}
		p.handshakes[nodeID] = handshake
	}

	p.errorLog = append(p.errorLog, snap.Errors...)
	p.mu.Unlock()

	if skipped > 0 {
		p.logger.Warn("Skipped malformed records during protocol state load",
			"restored", restored,
			"skipped", skipped)
	} else if restored > 0 {
		p.logger.Info("Restored protocol state",
			"messages", restored,
			"handshakes", len(snap.Handshakes))
	}
}
