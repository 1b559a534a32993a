package failure

import "github.com/rowguard/rowguard"

type Broken struct {
	rowguard.Base
	id int `rowguard:",id"`
	ch chan int
}
