package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/internal/config"
	"github.com/iudanet/synckit/pkg/coordinator"
	"github.com/iudanet/synckit/pkg/crypto/software"
	"github.com/iudanet/synckit/pkg/models"
	"github.com/iudanet/synckit/pkg/protocol"
	"github.com/iudanet/synckit/pkg/reconcile"
	"github.com/iudanet/synckit/pkg/replication"
	"github.com/iudanet/synckit/pkg/storage"
	"github.com/iudanet/synckit/pkg/storage/boltdb"
)

// runDemo прогоняет двухузловой loopback-сценарий: регистрация узлов,
// аутентифицированная сессия, обмен подписанными и шифрованными
// сообщениями, реконсиляция расходящихся версий и проверка здоровья
// репликации.
func runDemo(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "Path to a bbolt database for node A (empty = in-memory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// У каждого узла свое хранилище; дисковая база, если задана,
	// достается узлу A
	var storeA storage.Store = storage.NewMemory()
	if *dbPath != "" {
		bolt, err := boltdb.New(ctx, *dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if err := bolt.Close(); err != nil {
				logger.Error("Failed to close database", "error", err)
			}
		}()
		storeA = bolt
	}
	storeB := storage.NewMemory()

	providerA := software.New()
	identA, err := providerA.GenerateIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate identity for node-a: %w", err)
	}
	providerB := software.New()
	identB, err := providerB.GenerateIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate identity for node-b: %w", err)
	}

	fmt.Println("== Identities ==")
	fmt.Printf("node-a: %s\n", identA.DID)
	fmt.Printf("node-b: %s\n", identB.DID)

	// Координатор живет на стороне узла A
	coord := coordinator.New(logger)
	defer coord.Close()
	coord.ConfigureCrypto(providerA)
	coord.StartHeartbeatMonitoring(cfg.HeartbeatInterval)

	if _, err := coord.RegisterAuthenticatedNode(coordinator.NodeRegistration{
		ID:           "node-a",
		Address:      "127.0.0.1",
		Version:      Version,
		Capabilities: []string{"sync"},
		Port:         7701,
	}, &models.NodeIdentity{
		DID:                 identA.DID,
		PublicSigningKey:    identA.SigningKey,
		PublicEncryptionKey: identA.EncryptionKey,
	}); err != nil {
		return err
	}
	if _, err := coord.RegisterAuthenticatedNode(coordinator.NodeRegistration{
		ID:           "node-b",
		Address:      "127.0.0.1",
		Version:      Version,
		Capabilities: []string{"sync"},
		Port:         7702,
	}, &models.NodeIdentity{
		DID:                 identB.DID,
		PublicSigningKey:    identB.SigningKey,
		PublicEncryptionKey: identB.EncryptionKey,
	}); err != nil {
		return err
	}

	fmt.Println("== Session ==")
	session, err := coord.CreateAuthenticatedSyncSession(identA.DID, []string{identB.DID}, &coordinator.SessionOptions{
		EncryptionMode:       models.EncryptionModeAsymmetric,
		RequiredCapabilities: []string{"sync"},
	})
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %s\n", session.ID, session.Status)

	tokenCheck, err := coord.VerifyNodeCapabilities(session.ID, identB.DID, session.SessionToken)
	if err != nil {
		return err
	}
	fmt.Printf("session token authorized for node-b: %v\n", tokenCheck.Authorized)

	// Протоколы обоих узлов: подписи обязательны, payload шифруется
	protoA := protocol.New(ctx, "node-a", storeA, logger)
	defer protoA.Close()
	protoB := protocol.New(ctx, "node-b", storeB, logger)
	defer protoB.Close()

	cryptoCfg := &protocol.Config{
		EncryptionMode:       models.EncryptionModeAsymmetric,
		RequiredCapabilities: []string{"sync"},
		RequireSignatures:    true,
		RequireCapabilities:  true,
	}
	protoA.ConfigureCrypto(providerA, cryptoCfg)
	protoB.ConfigureCrypto(providerB, cryptoCfg)

	fmt.Println("== Handshake ==")
	hsA, err := protoA.CreateAuthenticatedHandshake([]string{"sync"}, identB.DID)
	if err != nil {
		return err
	}
	verifyA, err := protoB.VerifyAuthenticatedHandshake(hsA)
	if err != nil {
		return err
	}
	if !verifyA.Valid {
		return fmt.Errorf("handshake from node-a rejected: %s", verifyA.Error)
	}
	if err := protoB.RecordMessage(hsA); err != nil {
		return err
	}

	hsB, err := protoB.CreateAuthenticatedHandshake([]string{"sync"}, identA.DID)
	if err != nil {
		return err
	}
	verifyB, err := protoA.VerifyAuthenticatedHandshake(hsB)
	if err != nil {
		return err
	}
	if !verifyB.Valid {
		return fmt.Errorf("handshake from node-b rejected: %s", verifyB.Error)
	}
	if err := protoA.RecordMessage(hsB); err != nil {
		return err
	}
	fmt.Println("handshakes verified in both directions")

	fmt.Println("== Encrypted sync request ==")
	requestPayload := map[string]any{"keys": []string{"profile"}, "since": 0}
	request, err := protoA.CreateSyncRequestMessage("node-a", identB.DID, requestPayload)
	if err != nil {
		return err
	}
	request, err = protoA.SignMessage(request, requestPayload, true)
	if err != nil {
		return err
	}

	verification := protoB.VerifyMessage(request)
	if !verification.Valid {
		return fmt.Errorf("sync request rejected: %s", verification.Error)
	}
	fmt.Printf("node-b decrypted request: %s\n", verification.Payload)
	if err := protoB.RecordMessage(request); err != nil {
		return err
	}

	ack, err := protoB.CreateAckMessage("node-b", "node-a", request.MessageID)
	if err != nil {
		return err
	}
	if err := protoA.RecordMessage(ack); err != nil {
		return err
	}

	fmt.Println("== Reconciliation ==")
	reconciler := reconcile.New()
	stateA := map[string]any{"name": "alice", "theme": "dark"}
	stateB := map[string]any{"name": "alice", "theme": "light"}
	now := time.Now().UTC()

	hashA, err := contentHash(providerA, stateA)
	if err != nil {
		return err
	}
	hashB, err := contentHash(providerB, stateB)
	if err != nil {
		return err
	}

	if _, err := reconciler.RecordStateVersion("profile", "v1", now.Add(-2*time.Second), "node-a", hashA, stateA); err != nil {
		return err
	}
	if _, err := reconciler.RecordStateVersion("profile", "v2", now, "node-b", hashB, stateB); err != nil {
		return err
	}

	fmt.Printf("conflict on profile: %v\n", reconciler.DetectConflicts("profile"))
	result, err := reconciler.ReconcileLastWriteWins(reconciler.GetStateVersions("profile"))
	if err != nil {
		return err
	}
	fmt.Printf("winner %s, conflicts resolved %d, merged state %s\n",
		result.WinnerNodeID, result.ConflictsResolved, result.MergedState)

	fmt.Println("== Replication ==")
	repl := replication.New(ctx, storeA, logger)
	defer repl.Close()
	repl.ConfigureCrypto(providerA)

	policy, err := repl.CreatePolicy(&models.ReplicationPolicy{
		Name:              "demo",
		ConsistencyLevel:  models.ConsistencyReadAfterWrite,
		ReplicationFactor: 2,
		SyncInterval:      5000,
		MaxReplicationLag: 1000,
	})
	if err != nil {
		return err
	}

	if _, err := repl.RegisterReplica("replica-a", "node-a", models.ReplicaStatusPrimary); err != nil {
		return err
	}
	if _, err := repl.RegisterAuthenticatedReplica("replica-b", "node-b", identB.DID,
		identB.SigningKey, identB.EncryptionKey, true); err != nil {
		return err
	}
	if err := repl.UpdateReplicaStatus("replica-b", models.ReplicaStatusSecondary, 0, 120); err != nil {
		return err
	}

	health, err := repl.CheckReplicationHealth(policy.ID)
	if err != nil {
		return err
	}
	fmt.Printf("healthy=%v (replicas %d/%d, max lag %dms)\n",
		health.Healthy, health.HealthyReplicas, health.RequiredFactor, health.MaxLagMillis)

	envelope, err := repl.EncryptForReplica([]byte(`{"profile":{"theme":"light"}}`), identB.DID)
	if err != nil {
		return err
	}
	fmt.Printf("replication envelope for node-b: %d ciphertext bytes\n", len(envelope.Ciphertext))

	fmt.Println("== Completion ==")
	completed := models.SessionStatusCompleted
	itemsSynced := 1
	final, err := coord.UpdateSyncSession(session.ID, models.SessionUpdate{
		Status:      &completed,
		ItemsSynced: &itemsSynced,
	})
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %s, items synced %d\n", final.ID, final.Status, final.ItemsSynced)
	fmt.Printf("coordinator events: %d, node-a messages: %d, node-b messages: %d\n",
		len(coord.GetEvents()), protoA.MessageCount(), protoB.MessageCount())

	return nil
}

// contentHash хеширует состояние через канонический JSON, тем же
// рецептом, что внутренняя проверка версий.
func contentHash(provider *software.Provider, state map[string]any) (string, error) {
	raw, err := canonical.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return provider.HashContent(raw)
}
