package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"plaza/models"
)

// PostRepo stores posts with their denormalized author fields.
type PostRepo struct {
	coll *mongo.Collection
}

func NewPostRepo(coll *mongo.Collection) *PostRepo {
	return &PostRepo{coll: coll}
}

func (r *PostRepo) Get(ctx context.Context, postID string) (*models.Post, error) {
	var p models.Post
	err := r.coll.FindOne(ctx, bson.M{"_id": postID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepo) Create(ctx context.Context, p *models.Post) error {
	_, err := r.coll.InsertOne(ctx, p)
	return err
}

func (r *PostRepo) Update(ctx context.Context, postID string, set map[string]interface{}) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$set": bson.M(set)})
	return err
}

func (r *PostRepo) Delete(ctx context.Context, postID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": postID})
	return err
}

func (r *PostRepo) ListFeed(ctx context.Context) ([]models.Post, error) {
	return r.list(ctx, bson.M{})
}

func (r *PostRepo) ListByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	return r.list(ctx, bson.M{"userId": authorID})
}

func (r *PostRepo) list(ctx context.Context, filter bson.M) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepo) IDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.coll.Find(ctx, bson.M{"userId": authorID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// UpdateAuthorFields commits one propagation chunk: a single UpdateMany over
// the chunk's post ids, so the chunk succeeds or fails as a unit.
func (r *PostRepo) UpdateAuthorFields(ctx context.Context, postIDs []string, set map[string]interface{}, unset []string) error {
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

	_, err := r.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": postIDs}}, update)
	return err
}

// SetLiked adds or removes the user in likedBy and moves the counter in one
// atomic update. The membership condition in the filter makes the operation
// idempotent: a duplicate add or remove matches nothing, so the counter can
// never drift from the set.
func (r *PostRepo) SetLiked(ctx context.Context, postID, userID string, liked bool) error {
	var filter, update bson.M
	if liked {
		filter = bson.M{"_id": postID, "likedBy": bson.M{"$ne": userID}}
		update = bson.M{
			"$addToSet": bson.M{"likedBy": userID},
			"$inc":      bson.M{"likes": 1},
		}
	} else {
		filter = bson.M{"_id": postID, "likedBy": userID}
		update = bson.M{
			"$pull": bson.M{"likedBy": userID},
			"$inc":  bson.M{"likes": -1},
		}
	}

	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}
