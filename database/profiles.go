package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"plaza/models"
)

// ProfileRepo stores profile documents in the users collection, keyed by the
// identity provider's uid.
type ProfileRepo struct {
	coll *mongo.Collection
}

func NewProfileRepo(coll *mongo.Collection) *ProfileRepo {
	return &ProfileRepo{coll: coll}
}

func (r *ProfileRepo) Get(ctx context.Context, uid string) (*models.User, error) {
	var u models.User
	err := r.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *ProfileRepo) Upsert(ctx context.Context, u *models.User) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": u.ID}, u, opts)
	return err
}

// SetFields writes a partial update. Unset names are deleted from the
// document, which is how photo removal is represented on the wire.
func (r *ProfileRepo) SetFields(ctx context.Context, uid string, set map[string]interface{}, unset []string) error {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(unset) > 0 {
		fields := bson.M{}
		for _, name := range unset {
			fields[name] = ""
		}
		update["$unset"] = fields
	}
	if len(update) == 0 {
		return nil
	}

	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": uid}, update)
	return err
}
