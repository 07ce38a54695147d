// Command eurekactl 查询注册中心、手工维护实例，或以 agent 方式常驻注册本服务
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
