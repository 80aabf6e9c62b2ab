//go:build mage
// +build mage

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("TuneFetch 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build            - 构建所有二进制文件")
	fmt.Println("  mage test             - 运行所有测试")
	fmt.Println("  mage testUnit         - 运行单元测试")
	fmt.Println("  mage testRace         - 带竞态检测运行测试")
	fmt.Println("  mage testIntegration  - 运行依赖 Redis 的测试")
	fmt.Println("  mage redis:up         - 启动本地 Redis 容器")
	fmt.Println("  mage redis:down       - 停止本地 Redis 容器")
	fmt.Println("  mage clean            - 清理构建产物")
	fmt.Println("  mage lint             - 运行代码检查")
	fmt.Println("  mage coverage         - 生成测试覆盖率报告")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"tunefetch", "./cmd/tunefetch"},
		{"api_server", "./cmd/api_server"},
	}

	fmt.Println("🚀 开始构建 TuneFetch 组件...")

	for _, target := range targets {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := filepath.Join("./dist", target.name)
		if runtime.GOOS == "windows" {
			output += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", output, target.path)
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")

		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}

		if info, err := os.Stat(output); err == nil {
			fmt.Printf("   ✅ %s: %d MB\n", target.name, info.Size()/1024/1024)
		}
	}

	fmt.Println("🎉 所有组件构建完成!")
	return nil
}

// Test 运行所有测试
func Test() error {
	mg.Deps(TestUnit, TestIntegration)
	return nil
}

// TestUnit 运行单元测试
func TestUnit() error {
	fmt.Println("🧪 运行单元测试...")
	return runGoTest("./...", "-timeout=5m")
}

// TestRace 带竞态检测运行单元测试
func TestRace() error {
	fmt.Println("🏁 运行竞态检测...")
	return runGoTest("./...", "-race", "-timeout=10m")
}

// TestIntegration 运行依赖 Redis 的测试，Redis 不可用时相关用例自动跳过
func TestIntegration() error {
	fmt.Println("🔗 运行 Redis 相关测试...")

	addr := os.Getenv("TUNEFETCH_TEST_REDIS")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	if !isRedisRunning() {
		fmt.Printf("⚠️  %s 上没有运行 Redis，相关用例会被跳过\n", addr)
	}

	cmd := exec.Command("go", "test", "-v", "-run", "Redis", "./pkg/cache/...", "./pkg/app/...", "-timeout=5m")
	cmd.Env = append(os.Environ(), "TUNEFETCH_TEST_REDIS="+addr)
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试失败输出:\n%s\n", string(out))
		return fmt.Errorf("集成测试失败: %v", err)
	}

	fmt.Println("✅ 集成测试通过!")
	return nil
}

func runGoTest(pkg string, flags ...string) error {
	args := append([]string{"test", pkg}, flags...)
	cmd := exec.Command("go", args...)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "[no test files]") &&
			!strings.Contains(string(output), "FAIL") &&
			!strings.Contains(string(output), "build failed") {
			fmt.Println("✅ 测试通过! (部分包没有测试文件)")
			return nil
		}
		fmt.Printf("测试失败输出:\n%s\n", string(output))
		return fmt.Errorf("测试失败: %v", err)
	}

	fmt.Println("✅ 测试通过!")
	return nil
}

type Redis mg.Namespace

// Up 启动本地 Redis 容器，供 store.driver=redis 与集成测试使用
func (Redis) Up() error {
	fmt.Println("🚀 启动 Redis...")
	return sh.RunV("docker", "run", "-d", "--rm", "--name", "tunefetch-redis-dev", "-p", "6379:6379", "redis:7-alpine")
}

// Down 停止本地 Redis 容器
func (Redis) Down() error {
	fmt.Println("🛑 停止 Redis...")
	return sh.RunV("docker", "stop", "tunefetch-redis-dev")
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}

	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}

	if err := os.RemoveAll("./reports"); err != nil && !os.IsNotExist(err) {
		fmt.Printf("警告: 清理覆盖率报告失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}

// Lint 运行 gofmt 与 go vet
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	output, err := sh.Output("gofmt", "-l", "cmd", "pkg")
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if output != "" {
		fmt.Printf("发现代码格式问题:\n%s\n", output)
		fmt.Println("🛠️  正在自动修复格式问题...")
		if err := sh.Run("gofmt", "-w", "cmd", "pkg"); err != nil {
			return fmt.Errorf("自动修复失败: %v", err)
		}
		fmt.Println("✅ 代码格式已自动修复!")
	}

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	if err := os.MkdirAll("./reports", 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	cmd := exec.Command("go", "test", "./pkg/...", "-coverprofile=./reports/coverage.out", "-covermode=atomic")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试输出:\n%s\n", string(output))
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}

	if err := sh.Run("go", "tool", "cover", "-html=./reports/coverage.out", "-o", "./reports/coverage.html"); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func=./reports/coverage.out"); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	fmt.Println("✅ 覆盖率报告生成完成!")
	fmt.Println("   详细报告: file://" + getAbsolutePath("./reports/coverage.html"))
	return nil
}

func isRedisRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "exec", "tunefetch-redis-dev", "redis-cli", "ping")
	return cmd.Run() == nil
}

func getAbsolutePath(relativePath string) string {
	absPath, err := filepath.Abs(relativePath)
	if err != nil {
		return relativePath
	}
	return absPath
}
