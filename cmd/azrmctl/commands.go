package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/azrm/pkg/azure/xarm"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示参数或配置错误，映射到退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createGetCommand(),
		createGetIDCommand(),
		createExistsCommand(),
		createDeleteCommand(),
		createURLCommand(),
		createParseIDCommand(),
		createTokenCommand(),
	}
}

// createGetCommand 创建 get 子命令（按资源路径获取）。
func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"g"},
		Usage:     "按资源路径获取资源",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return &usageError{msg: "get 命令需要指定资源路径"}
			}
			return withClient(ctx, cmd, func(ctx context.Context, client xarm.Client) error {
				body, err := client.Get(ctx, path, cmd.String("api-version"))
				if err != nil {
					return err
				}
				return printResource(body)
			})
		},
	}
}

// createGetIDCommand 创建 get-id 子命令（按完整资源 ID 获取）。
func createGetIDCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-id",
		Usage:     "按完整资源 ID 获取资源",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return &usageError{msg: "get-id 命令需要指定资源 ID"}
			}
			return withClient(ctx, cmd, func(ctx context.Context, client xarm.Client) error {
				body, err := client.GetByID(ctx, id, cmd.String("api-version"))
				if err != nil {
					return err
				}
				return printResource(body)
			})
		},
	}
}

// createExistsCommand 创建 exists 子命令。
// 不存在时返回非零退出码（通过 exitError），
// 使脚本能直接以退出码判断资源状态。
func createExistsCommand() *cli.Command {
	return &cli.Command{
		Name:      "exists",
		Usage:     "判断资源是否存在",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return &usageError{msg: "exists 命令需要指定资源 ID"}
			}
			return withClient(ctx, cmd, func(ctx context.Context, client xarm.Client) error {
				exists, err := client.ExistsByID(ctx, id, cmd.String("api-version"))
				if err != nil {
					return err
				}
				if !exists {
					fmt.Println("false")
					return &exitError{code: 1}
				}
				fmt.Println("true")
				return nil
			})
		},
	}
}

// createDeleteCommand 创建 delete 子命令。
func createDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"del"},
		Usage:     "删除资源（资源本就不存在视为成功）",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return &usageError{msg: "delete 命令需要指定资源路径"}
			}
			return withClient(ctx, cmd, func(ctx context.Context, client xarm.Client) error {
				if err := client.Delete(ctx, path, cmd.String("api-version")); err != nil {
					return err
				}
				fmt.Println("已删除")
				return nil
			})
		},
	}
}

// createURLCommand 创建 url 子命令（组装资源路径，纯本地操作）。
func createURLCommand() *cli.Command {
	return &cli.Command{
		Name:      "url",
		Usage:     "组装资源路径",
		ArgsUsage: "<provider> <resource-type>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "group",
				Aliases: []string{"g"},
				Usage:   "资源组（缺省使用配置的默认资源组）",
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "资源名",
			},
			&cli.StringSliceFlag{
				Name:  "other",
				Usage: "资源名之后的附加路径段（可重复）",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) < 2 {
				return &usageError{msg: "url 命令需要 <provider> 和 <resource-type> 两个参数"}
			}

			cfg, err := loadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			if cfg.SubscriptionID == "" {
				return &usageError{msg: "url 命令需要配置 subscription_id"}
			}

			path := xarm.BuildRestAPIURL(cfg.SubscriptionID, cfg.DefaultResourceGroup, args[0], args[1], &xarm.URLOptions{
				ResourceGroup: cmd.String("group"),
				Name:          cmd.String("name"),
				Others:        cmd.StringSlice("other"),
			})
			fmt.Println(path)
			return nil
		},
	}
}

// createParseIDCommand 创建 parse-id 子命令（分解资源 ID，纯本地操作）。
func createParseIDCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse-id",
		Usage:     "分解资源 ID 为结构化字段",
		ArgsUsage: "<id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return &usageError{msg: "parse-id 命令需要指定资源 ID"}
			}

			parsed, err := xarm.ParseResourceID(id)
			if err != nil {
				return &usageError{msg: err.Error()}
			}

			out, err := json.MarshalIndent(map[string]string{
				"subscription_id": parsed.SubscriptionID,
				"resource_group":  parsed.ResourceGroup,
				"provider":        parsed.Provider,
				"resource_type":   parsed.ResourceType,
				"name":            parsed.Name,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// createTokenCommand 创建 token 子命令。
func createTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "获取一个有效的 Bearer Token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withClient(ctx, cmd, func(ctx context.Context, client xarm.Client) error {
				token, err := client.GetToken(ctx)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
}

// withClient 构造客户端执行操作，并保证关闭。
func withClient(ctx context.Context, cmd *cli.Command, fn func(context.Context, xarm.Client) error) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if timeout := cmd.Duration("timeout"); timeout > 0 {
		cfg.Timeout = timeout
	}

	client, err := xarm.NewClient(cfg, xarm.WithLogger(newLogger(cmd.Bool("verbose"))))
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout+5*time.Second)
	defer cancel()

	return fn(ctx, client)
}

// printResource 输出资源 JSON；absent 时输出提示并返回退出码 1。
func printResource(body json.RawMessage) error {
	if body == nil {
		fmt.Fprintln(os.Stderr, "资源不存在")
		return &exitError{code: 1}
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		// 非对象形状的合法 JSON 原样输出
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// newLogger 根据 verbose 开关构造日志器。
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
