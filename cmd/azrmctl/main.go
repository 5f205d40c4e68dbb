// azrmctl 是 Azure Resource Manager 的命令行客户端。
//
// 用法:
//
//	azrmctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config       配置文件路径 (YAML)
//	-v, --verbose      输出调试日志
//	    --timeout      单次请求超时时间 (默认: 30s)
//	    --api-version  资源请求的 api-version
//
// 命令:
//
//	get <path>                按资源路径获取资源
//	get-id <id>               按完整资源 ID 获取资源
//	exists <id>               判断资源是否存在
//	delete <path>             删除资源
//	url <provider> <type>     组装资源路径（纯本地操作）
//	parse-id <id>             分解资源 ID（纯本地操作）
//	token                     获取一个有效的 Bearer Token
//
// 配置文件格式 (YAML):
//
//	azure:
//	  tenant_id: "..."
//	  client_id: "..."
//	  client_secret: "..."        # 建议改用环境变量 AZRM_CLIENT_SECRET
//	  subscription_id: "..."
//	  resource_group: "my-group"
//	  environment: AzureChinaCloud
//
// 退出码:
//
//	0: 命令执行成功（exists 命令: 资源存在）
//	1: 命令执行失败或资源不存在（exists 命令）
//	2: 参数错误（缺少必需参数、未知命令、配置无效等）
//
// 示例:
//
//	azrmctl -c azrm.yaml get-id /subscriptions/s/resourceGroups/g/providers/Microsoft.Compute/virtualMachines/vm01
//	azrmctl -c azrm.yaml url Microsoft.Network virtualNetworks --name vnet01
//	azrmctl parse-id /subscriptions/s/resourceGroups/g/providers/p/t/n
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "azrmctl",
		Usage:   "Azure Resource Manager 命令行客户端",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (YAML)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "输出调试日志",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "单次请求超时时间",
				Value: defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "api-version",
				Usage: "资源请求的 api-version",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"XKit Team",
		},
		// 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2，
		// 与文档契约"参数错误 → 退出码 2"保持一致。
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}

// setupSignalHandler 设置信号处理。
// 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}

// isCLIUsageError 判断错误是否为 CLI 框架产生的参数错误。
func isCLIUsageError(err error) bool {
	if exitCoder, ok := err.(cli.ExitCoder); ok {
		return exitCoder.ExitCode() != 0
	}
	return false
}
