package component

// 组件名称常量
const (
	ComponentEureka  = "eureka"
	ComponentSidecar = "sidecar"
	ComponentRedis   = "redis"
)
