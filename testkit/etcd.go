package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/aegis/connector"
)

// GetEtcdConfig 返回 Etcd 测试配置
// 默认连接 localhost:2379，可通过 AEGIS_TEST_ETCD_ADDR 环境变量覆盖
func GetEtcdConfig() *connector.EtcdConfig {
	addr := os.Getenv("AEGIS_TEST_ETCD_ADDR")
	if addr == "" {
		addr = "localhost:2379"
	}
	return &connector.EtcdConfig{
		Name:        "test-etcd",
		Endpoints:   []string{addr},
		DialTimeout: 5 * time.Second,
	}
}

// GetEtcdConnector 获取 Etcd 连接器
func GetEtcdConnector(t *testing.T) connector.EtcdConnector {
	cfg := GetEtcdConfig()
	conn, err := connector.NewEtcd(cfg, connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create etcd connector: %v", err)
	}

	if err := conn.Connect(context.Background()); err != nil {
		t.Skipf("etcd not available at %v: %v", cfg.Endpoints, err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// GetEtcdClient 获取原生 Etcd 客户端
func GetEtcdClient(t *testing.T) *clientv3.Client {
	return GetEtcdConnector(t).GetClient()
}
