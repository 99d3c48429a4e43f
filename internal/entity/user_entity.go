package entity

// Profile is the public identity of a user, owned by the identity service.
type Profile struct {
	Id        string `bson:"_id" json:"id" db:"id"`
	Username  string `bson:"username" json:"username" db:"username"`
	Name      string `bson:"name" json:"name" db:"name"`
	AvatarUrl string `bson:"avatarUrl" json:"avatarUrl,omitempty" db:"avatar_url"`
}

type UserIndexFilter struct {
	Ids []string `bson:"ids"`
}
