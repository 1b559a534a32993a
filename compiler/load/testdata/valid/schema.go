package valid

import (
	"time"

	"github.com/rowguard/rowguard"
)

type Post struct {
	rowguard.Base
	id        int    `rowguard:",id,auto"`
	ownerID   int    `rowguard:"owner_id"`
	title     string
	createdAt time.Time
	scratch   string `rowguard:"-"`
}

type Comment struct {
	rowguard.Base
	id   int `rowguard:",id"`
	body string
}
