package reconcile

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/iudanet/synckit/pkg/models"
)

// Strategy - стратегия разрешения конфликтов.
type Strategy string

const (
	// StrategyLastWriteWins побеждает версия с самым поздним timestamp
	StrategyLastWriteWins Strategy = "last-write-wins"
	// StrategyVectorClock выбор по wall-clock времени с порогом расхождения
	StrategyVectorClock Strategy = "vector-clock"
	// StrategyMajorityVote побеждает самая многочисленная группа хешей
	StrategyMajorityVote Strategy = "majority-vote"
)

// clockSkewThreshold - порог расхождения часов для StrategyVectorClock:
// версии в пределах порога от победителя конфликтом не считаются.
const clockSkewThreshold = 100 * time.Millisecond

// Result - итог одной реконсиляции.
type Result struct {
	Timestamp          time.Time       `json:"timestamp"`                    // Timestamp время выполнения реконсиляции
	MergedState        json.RawMessage `json:"mergedState"`                  // MergedState данные победившей версии
	Strategy           Strategy        `json:"strategy"`                     // Strategy примененная стратегия
	WinnerNodeID       string          `json:"winnerNodeId,omitempty"`       // WinnerNodeID узел, чья версия победила
	VerificationErrors []string        `json:"verificationErrors,omitempty"` // VerificationErrors ошибки проверки отброшенных версий
	ConflictsResolved  int             `json:"conflictsResolved"`            // ConflictsResolved количество разрешенных конфликтов
	Success            bool            `json:"success"`                      // Success реконсиляция дала результат
}

// ReconcileLastWriteWins выбирает версию с самым поздним timestamp.
// Все остальные версии считаются разрешенными конфликтами.
func (r *Reconciler) ReconcileLastWriteWins(versions []*models.StateVersion) (*Result, error) {
	if len(versions) == 0 {
		return nil, ErrNoVersions
	}

	sorted := append([]*models.StateVersion(nil), versions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	winner := sorted[0]
	result := &Result{
		Timestamp:         time.Now().UTC(),
		MergedState:       append(json.RawMessage(nil), winner.Data...),
		Strategy:          StrategyLastWriteWins,
		WinnerNodeID:      winner.NodeID,
		ConflictsResolved: len(versions) - 1,
		Success:           true,
	}

	r.appendHistory(result)
	return result, nil
}

// ReconcileVectorClock выбирает победителя по wall-clock времени.
// Несмотря на имя, причинный vector-clock здесь не реализован: конфликтом
// считается версия, отстоящая от победителя больше чем на
// clockSkewThreshold, а версии внутри порога считаются согласованными.
func (r *Reconciler) ReconcileVectorClock(versions []*models.StateVersion) (*Result, error) {
	if len(versions) == 0 {
		return nil, ErrNoVersions
	}

	winner := versions[0]
	for _, sv := range versions[1:] {
		if sv.Timestamp.After(winner.Timestamp) {
			winner = sv
		}
	}

	resolved := 0
	for _, sv := range versions {
		delta := winner.Timestamp.Sub(sv.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta > clockSkewThreshold {
			resolved++
		}
	}

	result := &Result{
		Timestamp:         time.Now().UTC(),
		MergedState:       append(json.RawMessage(nil), winner.Data...),
		Strategy:          StrategyVectorClock,
		WinnerNodeID:      winner.NodeID,
		ConflictsResolved: resolved,
		Success:           true,
	}

	r.appendHistory(result)
	return result, nil
}

// ReconcileMajorityVote группирует версии по хешу и выбирает самую
// многочисленную группу. При равенстве побеждает группа, встреченная
// раньше. Результат - данные первой версии победившей группы.
func (r *Reconciler) ReconcileMajorityVote(versions []*models.StateVersion) (*Result, error) {
	if len(versions) == 0 {
		return nil, ErrNoVersions
	}

	groups := make(map[string][]*models.StateVersion)
	var order []string
	for _, sv := range versions {
		if _, seen := groups[sv.Hash]; !seen {
			order = append(order, sv.Hash)
		}
		groups[sv.Hash] = append(groups[sv.Hash], sv)
	}

	winnerHash := order[0]
	for _, hash := range order[1:] {
		if len(groups[hash]) > len(groups[winnerHash]) {
			winnerHash = hash
		}
	}

	winnerGroup := groups[winnerHash]
	winner := winnerGroup[0]

	result := &Result{
		Timestamp:         time.Now().UTC(),
		MergedState:       append(json.RawMessage(nil), winner.Data...),
		Strategy:          StrategyMajorityVote,
		WinnerNodeID:      winner.NodeID,
		ConflictsResolved: len(versions) - len(winnerGroup),
		Success:           true,
	}

	r.appendHistory(result)
	return result, nil
}

// GetReconciliationHistory возвращает историю реконсиляций
// в порядке выполнения.
func (r *Reconciler) GetReconciliationHistory() []*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*Result(nil), r.history...)
}

func (r *Reconciler) appendHistory(result *Result) {
	r.mu.Lock()
	r.history = append(r.history, result)
	r.mu.Unlock()
}
