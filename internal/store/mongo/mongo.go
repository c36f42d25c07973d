// Package mongo implements the store contracts on MongoDB. Documents
// keep string UUIDs as _id so identifiers look the same across all
// backends.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"walletd/internal/core"
	"walletd/internal/store"
)

const (
	collWallets      = "wallets"
	collTransactions = "transactions"
	collBudgets      = "budgets"
	collAudit        = "audit_events"
	collCounters     = "counters"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes a connection and pings the server before use.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collBudgets).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "wallet_id", Value: 1},
			{Key: "category", Value: 1},
			{Key: "year", Value: 1},
			{Key: "month", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create budget index: %w", err)
	}

	_, err = s.db.Collection(collTransactions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "wallet_id", Value: 1},
			{Key: "occurred_on", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create transaction index: %w", err)
	}

	_, err = s.db.Collection(collAudit).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "wallet_id", Value: 1},
			{Key: "_id", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

type walletDoc struct {
	ID      string   `bson:"_id"`
	Name    string   `bson:"name"`
	OwnerID string   `bson:"owner_id"`
	Members []string `bson:"members"`
}

type transactionDoc struct {
	ID          string    `bson:"_id"`
	WalletID    string    `bson:"wallet_id"`
	Type        string    `bson:"type"`
	AmountCents int64     `bson:"amount_cents"`
	Category    string    `bson:"category"`
	OccurredOn  time.Time `bson:"occurred_on"`
	Description string    `bson:"description"`
}

type budgetDoc struct {
	ID          string `bson:"_id"`
	WalletID    string `bson:"wallet_id"`
	Category    string `bson:"category"`
	AmountCents int64  `bson:"amount_cents"`
	Year        int    `bson:"year"`
	Month       int    `bson:"month"`
}

func toTransactionDoc(tx core.Transaction) transactionDoc {
	return transactionDoc{
		ID:          tx.ID,
		WalletID:    tx.WalletID,
		Type:        string(tx.Type),
		AmountCents: tx.Amount.Cents,
		Category:    tx.Category,
		OccurredOn:  tx.Date.Time,
		Description: tx.Description,
	}
}

func (d transactionDoc) toCore() core.Transaction {
	return core.Transaction{
		ID:          d.ID,
		WalletID:    d.WalletID,
		Type:        core.TransactionType(d.Type),
		Amount:      core.Money{Cents: d.AmountCents},
		Category:    d.Category,
		Date:        core.NewDate(d.OccurredOn.Year(), int(d.OccurredOn.Month()), d.OccurredOn.Day()),
		Description: d.Description,
	}
}

func (d budgetDoc) toCore() core.Budget {
	return core.Budget{
		ID:       d.ID,
		WalletID: d.WalletID,
		Category: d.Category,
		Amount:   core.Money{Cents: d.AmountCents},
		Year:     d.Year,
		Month:    d.Month,
	}
}

func (s *Store) InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.ID = uuid.NewString()
	if _, err := s.db.Collection(collTransactions).InsertOne(ctx, toTransactionDoc(tx)); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	update := bson.M{"$set": bson.M{
		"type":         string(patch.Type),
		"amount_cents": patch.Amount.Cents,
		"category":     patch.Category,
		"occurred_on":  patch.Date.Time,
		"description":  patch.Description,
	}}
	res, err := s.db.Collection(collTransactions).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return core.Transaction{}, store.ErrNotFound
	}
	return s.GetTransaction(ctx, id)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.Collection(collTransactions).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var doc transactionDoc
	err := s.db.Collection(collTransactions).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return doc.toCore(), nil
}

func (s *Store) ListByWallet(ctx context.Context, walletID string) ([]core.Transaction, error) {
	return s.findTransactions(ctx, bson.M{"wallet_id": walletID})
}

func (s *Store) ListByWalletCategoryPeriod(ctx context.Context, walletID, category string, year, month int) ([]core.Transaction, error) {
	start, end := core.PeriodBounds(year, month)
	return s.findTransactions(ctx, bson.M{
		"wallet_id":   walletID,
		"category":    category,
		"occurred_on": bson.M{"$gte": start, "$lt": end},
	})
}

func (s *Store) ListFiltered(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	filter := bson.M{}
	if f.WalletID != "" {
		filter["wallet_id"] = f.WalletID
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	dateRange := bson.M{}
	if !f.From.IsZero() {
		dateRange["$gte"] = f.From
	}
	if !f.To.IsZero() {
		dateRange["$lte"] = f.To
	}
	if len(dateRange) > 0 {
		filter["occurred_on"] = dateRange
	}
	return s.findTransactions(ctx, filter)
}

func (s *Store) findTransactions(ctx context.Context, filter bson.M) ([]core.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_on", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(collTransactions).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	txs := make([]core.Transaction, len(docs))
	for i, d := range docs {
		txs[i] = d.toCore()
	}
	return txs, nil
}

func (s *Store) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	filter := bson.M{
		"wallet_id": b.WalletID,
		"category":  b.Category,
		"year":      b.Year,
		"month":     b.Month,
	}
	update := bson.M{
		"$set":         bson.M{"amount_cents": b.Amount.Cents},
		"$setOnInsert": bson.M{"_id": uuid.NewString()},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc budgetDoc
	if err := s.db.Collection(collBudgets).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return doc.toCore(), nil
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	res, err := s.db.Collection(collBudgets).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var doc budgetDoc
	err := s.db.Collection(collBudgets).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Budget{}, store.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return doc.toCore(), nil
}

func (s *Store) FindBudget(ctx context.Context, walletID, category string, year, month int) (core.Budget, error) {
	var doc budgetDoc
	err := s.db.Collection(collBudgets).FindOne(ctx, bson.M{
		"wallet_id": walletID,
		"category":  category,
		"year":      year,
		"month":     month,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Budget{}, store.ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("find budget: %w", err)
	}
	return doc.toCore(), nil
}

func (s *Store) ListBudgetsByWallet(ctx context.Context, walletID string) ([]core.Budget, error) {
	return s.findBudgets(ctx, bson.M{"wallet_id": walletID})
}

func (s *Store) ListBudgetsFiltered(ctx context.Context, f store.BudgetFilter) ([]core.Budget, error) {
	filter := bson.M{}
	if f.WalletID != "" {
		filter["wallet_id"] = f.WalletID
	}
	if f.Year != 0 {
		filter["year"] = f.Year
	}
	if f.Month != 0 {
		filter["month"] = f.Month
	}
	return s.findBudgets(ctx, filter)
}

func (s *Store) findBudgets(ctx context.Context, filter bson.M) ([]core.Budget, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "year", Value: 1},
		{Key: "month", Value: 1},
		{Key: "category", Value: 1},
	})
	cur, err := s.db.Collection(collBudgets).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find budgets: %w", err)
	}
	defer cur.Close(ctx)

	var docs []budgetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode budgets: %w", err)
	}
	bs := make([]core.Budget, len(docs))
	for i, d := range docs {
		bs[i] = d.toCore()
	}
	return bs, nil
}

func (s *Store) CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error) {
	if err := w.Validate(); err != nil {
		return core.Wallet{}, err
	}
	w.ID = uuid.NewString()
	if len(w.Members) == 0 {
		w.Members = []string{w.OwnerID}
	}
	doc := walletDoc{ID: w.ID, Name: w.Name, OwnerID: w.OwnerID, Members: w.Members}
	if _, err := s.db.Collection(collWallets).InsertOne(ctx, doc); err != nil {
		return core.Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return w, nil
}

func (s *Store) GetWallet(ctx context.Context, id string) (core.Wallet, error) {
	var doc walletDoc
	err := s.db.Collection(collWallets).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Wallet{}, store.ErrNotFound
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return core.Wallet{ID: doc.ID, Name: doc.Name, OwnerID: doc.OwnerID, Members: doc.Members}, nil
}

func (s *Store) AddMember(ctx context.Context, walletID, memberID string) (core.Wallet, error) {
	res, err := s.db.Collection(collWallets).UpdateOne(ctx,
		bson.M{"_id": walletID},
		bson.M{"$addToSet": bson.M{"members": memberID}})
	if err != nil {
		return core.Wallet{}, fmt.Errorf("add wallet member: %w", err)
	}
	if res.MatchedCount == 0 {
		return core.Wallet{}, store.ErrNotFound
	}
	return s.GetWallet(ctx, walletID)
}

func (s *Store) ListWalletsByMember(ctx context.Context, memberID string) ([]core.Wallet, error) {
	cur, err := s.db.Collection(collWallets).Find(ctx, bson.M{"members": memberID})
	if err != nil {
		return nil, fmt.Errorf("list wallets by member: %w", err)
	}
	defer cur.Close(ctx)

	var docs []walletDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode wallets: %w", err)
	}
	wallets := make([]core.Wallet, len(docs))
	for i, d := range docs {
		wallets[i] = core.Wallet{ID: d.ID, Name: d.Name, OwnerID: d.OwnerID, Members: d.Members}
	}
	return wallets, nil
}

func (s *Store) DeleteWallet(ctx context.Context, id string) error {
	res, err := s.db.Collection(collWallets).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}

	if _, err := s.db.Collection(collTransactions).DeleteMany(ctx, bson.M{"wallet_id": id}); err != nil {
		return fmt.Errorf("delete wallet transactions: %w", err)
	}
	if _, err := s.db.Collection(collBudgets).DeleteMany(ctx, bson.M{"wallet_id": id}); err != nil {
		return fmt.Errorf("delete wallet budgets: %w", err)
	}
	return nil
}

type auditDoc struct {
	ID          int64     `bson:"_id"`
	Kind        string    `bson:"kind"`
	Operation   string    `bson:"operation"`
	WalletID    string    `bson:"wallet_id"`
	ActorID     string    `bson:"actor_id"`
	EntityID    string    `bson:"entity_id"`
	AmountCents int64     `bson:"amount_cents"`
	Category    string    `bson:"category"`
	OccurredAt  time.Time `bson:"occurred_at"`
}

// nextAuditID draws a monotonic sequence from the counters collection so
// audit event IDs stay int64 like the SQLite backend's rowids.
func (s *Store) nextAuditID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": collAudit},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next audit sequence: %w", err)
	}
	return doc.Seq, nil
}

func (s *Store) AppendAuditEvent(ctx context.Context, ev store.AuditEvent) (store.AuditEvent, error) {
	id, err := s.nextAuditID(ctx)
	if err != nil {
		return store.AuditEvent{}, err
	}
	ev.ID = id
	doc := auditDoc{
		ID:          ev.ID,
		Kind:        ev.Kind,
		Operation:   ev.Operation,
		WalletID:    ev.WalletID,
		ActorID:     ev.ActorID,
		EntityID:    ev.EntityID,
		AmountCents: ev.AmountCents,
		Category:    ev.Category,
		OccurredAt:  ev.OccurredAt,
	}
	if _, err := s.db.Collection(collAudit).InsertOne(ctx, doc); err != nil {
		return store.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	return ev, nil
}

func (s *Store) ListAuditEvents(ctx context.Context, walletID string, limit int) ([]store.AuditEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.db.Collection(collAudit).Find(ctx, bson.M{"wallet_id": walletID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode audit events: %w", err)
	}
	events := make([]store.AuditEvent, len(docs))
	for i, d := range docs {
		events[i] = store.AuditEvent{
			ID:          d.ID,
			Kind:        d.Kind,
			Operation:   d.Operation,
			WalletID:    d.WalletID,
			ActorID:     d.ActorID,
			EntityID:    d.EntityID,
			AmountCents: d.AmountCents,
			Category:    d.Category,
			OccurredAt:  d.OccurredAt,
		}
	}
	return events, nil
}
