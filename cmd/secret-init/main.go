// secret-init 把 .env 里的键值导入加密凭证库。
//
// 机器人运行时不读明文 .env，敏感项走凭证库；本命令在部署时
// 执行一次：
//
//	AUTOTRADE_SECRET_KEY=<32字节hex> secret-init -in .env -db data/secrets.badger
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aakaka525-design/auto-trade/pkg/secretstore"
)

func main() {
	var (
		inPath    = flag.String("in", ".env", ".env 文件路径")
		dbPath    = flag.String("db", getenv("AUTOTRADE_SECRET_DB", "data/secrets.badger"), "凭证库路径")
		secretKey = flag.String("secret-key", getenv("AUTOTRADE_SECRET_KEY", ""), "加密密钥（32 字节 hex/base64）")
	)
	flag.Parse()

	key, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if key == nil {
		fatal(fmt.Errorf("缺少加密密钥：设置 AUTOTRADE_SECRET_KEY 或传 -secret-key"))
	}

	kv, err := parseDotEnv(*inPath)
	if err != nil {
		fatal(err)
	}

	store, err := secretstore.Open(secretstore.Options{Path: *dbPath, Key: key})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	for k, v := range kv {
		if err := store.Set(secretstore.EnvPrefix+k, v); err != nil {
			fatal(err)
		}
	}
	fmt.Fprintf(os.Stderr, "已导入 %d 项到 %s\n", len(kv), *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

func parseDotEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		l := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if l == "" || strings.HasPrefix(l, "#") || !strings.Contains(l, "=") {
			continue
		}
		parts := strings.SplitN(l, "=", 2)
		k, v := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if k == "" {
			continue
		}
		if len(v) >= 2 && ((v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'')) {
			v = v[1 : len(v)-1]
		}
		out[k] = v
	}
	return out, nil
}
