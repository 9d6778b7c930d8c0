package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redbank/donation-system/internal/core/domain"
	"github.com/redbank/donation-system/internal/core/ports"
)

const collectionUsers = "users"

// UserRepository implements ports.UserRepository. Ledger writes are guarded
// by the document's version field and touch the embedded donations array
// with positional updates, never by rewriting it.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

type mongoDonation struct {
	ID          int        `bson:"id"`
	Date        string     `bson:"date"`
	Location    string     `bson:"location"`
	Amount      float64    `bson:"amount"`
	Status      string     `bson:"status"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	RequestID   string     `bson:"request_id,omitempty"`
}

type mongoLevel struct {
	Current     int    `bson:"current"`
	XP          int    `bson:"xp"`
	NextLevelXP int    `bson:"next_level_xp"`
	LevelBadge  string `bson:"level_badge"`
}

type mongoUser struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	PasswordHash     string             `bson:"password_hash"`
	Role             string             `bson:"role"`
	Phone            string             `bson:"phone,omitempty"`
	BloodGroup       string             `bson:"blood_group,omitempty"`
	BloodGroupNeeded string             `bson:"blood_group_needed,omitempty"`
	City             string             `bson:"city,omitempty"`
	ProfileImage     string             `bson:"profile_image,omitempty"`
	IsActive         bool               `bson:"is_active"`
	IsSuspended      bool               `bson:"is_suspended"`
	TotalDonated     int                `bson:"total_donated"`
	Donations        []mongoDonation    `bson:"donations"`
	Achievements     []string           `bson:"achievements"`
	Level            mongoLevel         `bson:"level"`
	Version          int64              `bson:"version"`
	CreatedAt        time.Time          `bson:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at"`
}

func toMongoDonation(d domain.DonationEntry) mongoDonation {
	return mongoDonation{
		ID:          d.ID,
		Date:        d.Date,
		Location:    d.Location,
		Amount:      d.Amount,
		Status:      string(d.Status),
		CompletedAt: d.CompletedAt,
		RequestID:   d.RequestID,
	}
}

func toMongoLevel(l domain.LevelState) mongoLevel {
	return mongoLevel{
		Current:     l.Current,
		XP:          l.XP,
		NextLevelXP: l.NextLevelXP,
		LevelBadge:  string(l.LevelBadge),
	}
}

func toMongoUser(u *domain.User) mongoUser {
	donations := make([]mongoDonation, 0, len(u.Donations))
	for _, d := range u.Donations {
		donations = append(donations, toMongoDonation(d))
	}
	achievements := u.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return mongoUser{
		Name:             u.Name,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Role:             u.Role,
		Phone:            u.Phone,
		BloodGroup:       u.BloodGroup,
		BloodGroupNeeded: u.BloodGroupNeeded,
		City:             u.City,
		ProfileImage:     u.ProfileImage,
		IsActive:         u.IsActive,
		IsSuspended:      u.IsSuspended,
		TotalDonated:     u.TotalDonated,
		Donations:        donations,
		Achievements:     achievements,
		Level:            toMongoLevel(u.Level),
		Version:          u.Version,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func (m *mongoUser) toDomain() *domain.User {
	donations := make([]domain.DonationEntry, 0, len(m.Donations))
	for _, d := range m.Donations {
		donations = append(donations, domain.DonationEntry{
			ID:          d.ID,
			Date:        d.Date,
			Location:    d.Location,
			Amount:      d.Amount,
			Status:      domain.DonationStatus(d.Status),
			CompletedAt: d.CompletedAt,
			RequestID:   d.RequestID,
		})
	}
	achievements := m.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return &domain.User{
		ID:               m.ID.Hex(),
		Name:             m.Name,
		Email:            m.Email,
		PasswordHash:     m.PasswordHash,
		Role:             m.Role,
		Phone:            m.Phone,
		BloodGroup:       m.BloodGroup,
		BloodGroupNeeded: m.BloodGroupNeeded,
		City:             m.City,
		ProfileImage:     m.ProfileImage,
		IsActive:         m.IsActive,
		IsSuspended:      m.IsSuspended,
		TotalDonated:     m.TotalDonated,
		Donations:        donations,
		Achievements:     achievements,
		Level: domain.LevelState{
			Current:     m.Level.Current,
			XP:          m.Level.XP,
			NextLevelXP: m.Level.NextLevelXP,
			LevelBadge:  domain.Badge(m.Level.LevelBadge),
		},
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// userID parses a hex id. Malformed ids cannot name a stored user.
func userID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrUserNotFound
	}
	return oid, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mu mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := userID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoUser(user)
	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert user: unexpected id type %T", res.InsertedID)
	}
	doc.ID = oid
	return doc.toDomain(), nil
}

// updateOne applies update and returns the document as it is afterwards.
func (r *UserRepository) updateOne(ctx context.Context, id string, update any) (*domain.User, error) {
	oid, err := userID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var mu mongoUser
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return mu.toDomain(), nil
}

func (r *UserRepository) Update(ctx context.Context, id string, p ports.UserPatch) (*domain.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = *p.Email
	}
	if p.Phone != nil {
		set["phone"] = *p.Phone
	}
	if p.BloodGroup != nil {
		set["blood_group"] = *p.BloodGroup
	}
	if p.BloodGroupNeeded != nil {
		set["blood_group_needed"] = *p.BloodGroupNeeded
	}
	if p.City != nil {
		set["city"] = *p.City
	}
	return r.updateOne(ctx, id, bson.M{"$set": set})
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	oid, err := userID(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func buildUserFilter(f ports.UserFilter) bson.M {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.BloodGroup != "" {
		filter["$or"] = bson.A{
			bson.M{"blood_group": f.BloodGroup},
			bson.M{"blood_group_needed": f.BloodGroup},
		}
	}
	if f.City != "" {
		filter["city"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.City) + "$", Options: "i"}
	}
	if f.OnlyAvailable {
		filter["is_active"] = true
		filter["is_suspended"] = bson.M{"$ne": true}
	}
	return filter
}

// List returns one page of users matching the filter and the total match
// count. A zero Limit returns every match.
func (r *UserRepository) List(ctx context.Context, f ports.UserFilter) ([]*domain.User, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := buildUserFilter(f)

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip(int64((page - 1) * f.Limit)).SetLimit(int64(f.Limit))
	}

	users, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) TopDonors(ctx context.Context, limit int) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"role": domain.RoleDonor, "is_suspended": bson.M{"$ne": true}}
	opts := options.Find().
		SetSort(bson.D{{Key: "total_donated", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

func (r *UserRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.User, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]*domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toDomain())
	}
	return users, nil
}

func (r *UserRepository) SetRole(ctx context.Context, id, role string) (*domain.User, error) {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"role": role, "updated_at": time.Now().UTC()}})
}

func (r *UserRepository) SetSuspended(ctx context.Context, id string, suspended bool) (*domain.User, error) {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"is_suspended": suspended, "updated_at": time.Now().UTC()}})
}

// ToggleActive negates is_active server-side with a pipeline update, so two
// concurrent toggles always cancel out.
func (r *UserRepository) ToggleActive(ctx context.Context, id string) (bool, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "is_active", Value: bson.D{{Key: "$not", Value: bson.A{"$is_active"}}}},
			{Key: "updated_at", Value: "$$NOW"},
		}}},
	}
	u, err := r.updateOne(ctx, id, pipeline)
	if err != nil {
		return false, err
	}
	return u.IsActive, nil
}

func (r *UserRepository) AppendAchievements(ctx context.Context, id string, items []string) ([]string, error) {
	u, err := r.updateOne(ctx, id, bson.M{
		"$push": bson.M{"achievements": bson.M{"$each": items}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return nil, err
	}
	return u.Achievements, nil
}

func (r *UserRepository) SetProfileImage(ctx context.Context, id, path string) (string, error) {
	oid, err := userID(id)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"profile_image": path, "updated_at": time.Now().UTC()}}
	if path == "" {
		update = bson.M{
			"$unset": bson.M{"profile_image": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		}
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"profile_image": 1})

	var prev struct {
		ProfileImage string `bson:"profile_image"`
	}
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&prev); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", domain.ErrUserNotFound
		}
		return "", fmt.Errorf("set profile image: %w", err)
	}
	return prev.ProfileImage, nil
}

// versionFilter matches the expected revision. Documents written before the
// field existed are treated as revision zero.
func versionFilter(expected int64) any {
	if expected == 0 {
		return bson.M{"$in": bson.A{int64(0), nil}}
	}
	return expected
}

func (r *UserRepository) AppendDonation(ctx context.Context, id string, expectedVersion int64, entry domain.DonationEntry, totals *ports.LedgerTotals) error {
	oid, err := userID(id)
	if err != nil {
		return err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if totals != nil {
		set["total_donated"] = totals.TotalDonated
		set["level"] = toMongoLevel(totals.Level)
	}
	update := bson.M{
		"$push": bson.M{"donations": toMongoDonation(entry)},
		"$inc":  bson.M{"version": 1},
		"$set":  set,
	}

	return r.guardedUpdate(ctx, oid, bson.M{"_id": oid, "version": versionFilter(expectedVersion)}, update)
}

func (r *UserRepository) CompleteDonation(ctx context.Context, id string, expectedVersion int64, donationID int, totals ports.LedgerTotals) error {
	oid, err := userID(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	filter := bson.M{
		"_id":     oid,
		"version": versionFilter(expectedVersion),
		"donations": bson.M{"$elemMatch": bson.M{
			"id":     donationID,
			"status": string(domain.DonationPending),
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"donations.$.status":       string(domain.DonationCompleted),
			"donations.$.completed_at": now,
			"total_donated":            totals.TotalDonated,
			"level":                    toMongoLevel(totals.Level),
			"updated_at":               now,
		},
		"$inc": bson.M{"version": 1},
	}

	return r.guardedUpdate(ctx, oid, filter, update)
}

// guardedUpdate runs a conditional update and tells a missing user apart
// from a lost race.
func (r *UserRepository) guardedUpdate(ctx context.Context, oid primitive.ObjectID, filter bson.M, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return domain.ErrVersionMismatch
}

// EnsureIndexes creates the indexes the user queries rely on.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "blood_group", Value: 1}, {Key: "city", Value: 1}}},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "total_donated", Value: -1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
