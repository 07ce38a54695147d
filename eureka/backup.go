package eureka

import (
	"context"
)

// BackupStore 接收每次成功拉取后的注册表快照，只写不读
//
// RegistryCache 从不从备份恢复：首次拉取失败时以空注册表启动，
// 避免把上一个进程留下的、可能早已失效的地址交给调用方。
// 备份只用于排查（eurekactl backup）。
type BackupStore interface {
	Save(ctx context.Context, instances []Instance) error
}
