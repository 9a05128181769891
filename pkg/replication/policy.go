package replication

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iudanet/synckit/pkg/models"
)

// Метки корзин гистограммы отставания реплик.
const (
	lagBucketUnder100  = "<100ms"
	lagBucket100To500  = "100-500ms"
	lagBucket500To1000 = "500-1000ms"
	lagBucketOver1000  = ">1000ms"
)

// HealthReport - результат проверки здоровья репликации против политики.
type HealthReport struct {
	PolicyID        string `json:"policyId"`        // PolicyID проверенная политика
	HealthyReplicas int    `json:"healthyReplicas"` // HealthyReplicas количество здоровых реплик
	RequiredFactor  int    `json:"requiredFactor"`  // RequiredFactor требуемое политикой количество
	MaxLagMillis    int64  `json:"maxLagMillis"`    // MaxLagMillis наибольшее отставание среди здоровых реплик
	Healthy         bool   `json:"healthy"`         // Healthy политика удовлетворена
}

// CreatePolicy валидирует и сохраняет политику репликации. Идентификатор
// генерируется, переданное значение игнорируется. Политика неизменяема
// после создания.
func (m *Manager) CreatePolicy(policy *models.ReplicationPolicy) (*models.ReplicationPolicy, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy cannot be nil")
	}

	stored := policy.Clone()
	stored.ID = uuid.NewString()

	if err := m.validate.Struct(stored); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return nil, fmt.Errorf("invalid policy: field %s failed %s validation", fe.Field(), fe.Tag())
		}
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	m.mu.Lock()
	m.policies[stored.ID] = stored
	m.mu.Unlock()

	m.saver.Schedule()
	m.logger.Info("Replication policy created",
		"policy_id", stored.ID,
		"name", stored.Name,
		"replication_factor", stored.ReplicationFactor,
		"consistency_level", string(stored.ConsistencyLevel))

	return stored.Clone(), nil
}

// GetPolicy возвращает политику по идентификатору.
func (m *Manager) GetPolicy(id string) (*models.ReplicationPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	policy, ok := m.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
	}
	return policy.Clone(), nil
}

// ListPolicies возвращает все политики без определенного порядка.
func (m *Manager) ListPolicies() []*models.ReplicationPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.ReplicationPolicy, 0, len(m.policies))
	for _, policy := range m.policies {
		result = append(result, policy.Clone())
	}
	return result
}

// CheckReplicationHealth проверяет состояние реплик против политики:
// здоровых реплик должно быть не меньше replication factor, а наибольшее
// отставание здоровой реплики - не больше допустимого.
func (m *Manager) CheckReplicationHealth(policyID string) (*HealthReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	policy, ok := m.policies[policyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}

	healthy := 0
	var maxLag int64
	for _, replica := range m.replicas {
		if !replica.IsHealthy() {
			continue
		}
		healthy++
		if replica.LagMillis > maxLag {
			maxLag = replica.LagMillis
		}
	}

	return &HealthReport{
		PolicyID:        policyID,
		HealthyReplicas: healthy,
		RequiredFactor:  policy.ReplicationFactor,
		MaxLagMillis:    maxLag,
		Healthy:         healthy >= policy.ReplicationFactor && maxLag <= policy.MaxReplicationLag,
	}, nil
}

// CanSatisfyConsistency сообщает, достижим ли уровень согласованности
// политики при текущем наборе реплик. requiredAcks зарезервирован
// и на решение не влияет. Неизвестная политика - всегда false.
func (m *Manager) CanSatisfyConsistency(policyID string, requiredAcks int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	policy, ok := m.policies[policyID]
	if !ok {
		return false
	}

	healthy := 0
	for _, replica := range m.replicas {
		if replica.IsHealthy() {
			healthy++
		}
	}

	switch policy.ConsistencyLevel {
	case models.ConsistencyEventual:
		return true
	case models.ConsistencyReadAfterWrite:
		return healthy >= 1
	case models.ConsistencyStrong:
		return healthy >= policy.ReplicationFactor
	default:
		return false
	}
}

// GetReplicationLagDistribution строит гистограмму отставания всех
// реплик по фиксированным корзинам с границами 100/500/1000 мс.
func (m *Manager) GetReplicationLagDistribution() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	distribution := map[string]int{
		lagBucketUnder100:  0,
		lagBucket100To500:  0,
		lagBucket500To1000: 0,
		lagBucketOver1000:  0,
	}

	for _, replica := range m.replicas {
		switch {
		case replica.LagMillis < 100:
			distribution[lagBucketUnder100]++
		case replica.LagMillis < 500:
			distribution[lagBucket100To500]++
		case replica.LagMillis < 1000:
			distribution[lagBucket500To1000]++
		default:
			distribution[lagBucketOver1000]++
		}
	}

	return distribution
}
