package component

// ConfigLoader is the read side of the configuration layer. Components read
// their own section through it.
//
//	cfg := eureka.DefaultConfig()
//	if err := loader.Unmarshal("eureka", &cfg); err != nil {
//	    return err
//	}
type ConfigLoader interface {
	Get(key string) interface{}
	Unmarshal(key string, v interface{}) error
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	IsSet(key string) bool
}
