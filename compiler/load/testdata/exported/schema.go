package exported

import "github.com/rowguard/rowguard"

type Loud struct {
	rowguard.Base
	Name string
}
