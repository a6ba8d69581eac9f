// faucetctl 是领取服务的命令行客户端。
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sudtfaucet/backend/internal/auth"
	"sudtfaucet/backend/internal/client"
	"sudtfaucet/backend/internal/domain"
)

const usage = `用法: faucetctl [-endpoint URL] [-token JWT] <command> [flags]

commands:
  login        -key <hex> [-message <text>]          使用发行方私钥登录并打印令牌
  send         -pubkey-hash <hex> [-flag n] -file <recipients.json>
  list         -sudt <sudtId>
  get          -secret <secret>
  claim        -secret <secret> -address <address>
  disable      -secret <secret>
  account                                             打印发放账户地址
  check-mint   -decimals n -balance x -max x -current x -capacity x -amount x

环境变量 SUDTFAUCET_ENDPOINT / SUDTFAUCET_TOKEN 可以代替 -endpoint / -token。
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("faucetctl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	endpoint := global.String("endpoint", envOr("SUDTFAUCET_ENDPOINT", "http://127.0.0.1:8080/rpc"), "JSON-RPC 地址")
	token := global.String("token", os.Getenv("SUDTFAUCET_TOKEN"), "发行方登录令牌")
	timeout := global.Duration("timeout", 30*time.Second, "请求超时")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.New(*endpoint, client.WithToken(*token))
	cmd, rest := global.Arg(0), global.Args()[1:]

	switch cmd {
	case "login":
		return runLogin(ctx, c, rest, out)
	case "send":
		return runSend(ctx, c, rest, out)
	case "list":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		sudtID := fs.String("sudt", "", "sudt id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		histories, err := c.ListClaimHistory(ctx, *sudtID)
		if err != nil {
			return err
		}
		return printJSON(out, histories)
	case "get":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		secret := fs.String("secret", "", "领取密钥")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		history, err := c.GetClaimHistory(ctx, *secret)
		if err != nil {
			return err
		}
		if history == nil {
			return client.ErrClaimNotFound
		}
		return printJSON(out, history)
	case "claim":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		secret := fs.String("secret", "", "领取密钥")
		address := fs.String("address", "", "接收地址")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		flow := client.NewClaimFlow(c, *secret)
		if _, err := flow.Refresh(ctx); err != nil {
			return err
		}
		state, err := flow.Claim(ctx, *address)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "claim state: %s\n", state)
		return nil
	case "disable":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		secret := fs.String("secret", "", "领取密钥")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if err := c.DisableClaimSecret(ctx, *secret); err != nil {
			return err
		}
		fmt.Fprintln(out, "disabled")
		return nil
	case "account":
		addr, err := c.GetClaimableAccountAddress(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, addr)
		return nil
	case "check-mint":
		return runCheckMint(rest, out)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runLogin(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("SUDTFAUCET_OWNER_KEY"), "发行方私钥（十六进制）")
	message := fs.String("message", "", "签名消息，默认使用当前时间")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("-key is required")
	}
	if *message == "" {
		*message = fmt.Sprintf("sudt faucet login %d", time.Now().Unix())
	}

	sig, err := auth.SignMessage(*message, *key)
	if err != nil {
		return err
	}
	token, err := c.Login(ctx, *message, sig)
	if err != nil {
		return err
	}
	return printJSON(out, token)
}

func runSend(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	pubkeyHash := fs.String("pubkey-hash", "", "发行方 pubkey hash")
	rcFlag := fs.Uint("flag", 0, "RC identity flag")
	file := fs.String("file", "", "收件人 JSON 文件，- 表示标准输入")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rcFlag > 255 {
		return fmt.Errorf("flag out of range: %d", *rcFlag)
	}

	recipients, err := readRecipients(*file)
	if err != nil {
		return err
	}
	identity := domain.RCIdentity{PubkeyHash: *pubkeyHash, Flag: uint8(*rcFlag)}
	if err := c.SendClaimableMails(ctx, identity, recipients); err != nil {
		return err
	}
	fmt.Fprintf(out, "queued %d claimable mails\n", len(recipients))
	return nil
}

func runCheckMint(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check-mint", flag.ContinueOnError)
	form := client.ChargeForm{}
	decimals := fs.Int("decimals", 8, "代币精度")
	fs.StringVar(&form.Balance, "balance", "0", "CKB 余额（shannon）")
	fs.StringVar(&form.MaxSupply, "max", "0", "最大供应量")
	fs.StringVar(&form.CurrentSupply, "current", "0", "当前供应量")
	fs.StringVar(&form.Capacity, "capacity", "", "充值容量（CKB）")
	fs.StringVar(&form.MintAmount, "amount", "", "增发数量")
	if err := fs.Parse(args); err != nil {
		return err
	}
	form.Decimals = int32(*decimals)

	errs, err := form.Validate()
	if err != nil {
		return err
	}
	if !errs.Empty() {
		_ = printJSON(out, errs)
		return errs.Err()
	}
	fmt.Fprintln(out, "ok")
	return nil
}

func readRecipients(path string) ([]domain.Recipient, error) {
	var r io.Reader
	switch path {
	case "":
		return nil, errors.New("-file is required")
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var recipients []domain.Recipient
	if err := json.NewDecoder(r).Decode(&recipients); err != nil {
		return nil, fmt.Errorf("invalid recipients file: %w", err)
	}
	return recipients, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
