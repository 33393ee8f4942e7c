package cache

import "fmt"

// GenerateKeyWithParams builds a colon-separated cache key from a prefix
// and its parameters, e.g. GenerateKeyWithParams("ops:alerts", 50) ->
// "ops:alerts:50".
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, p := range params {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}
