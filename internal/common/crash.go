// -----------------------------------------------------------------------
// Crash Protection - last-resort crash file for panics escaping main
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// CrashLogDir is where crash files are written; set by InstallCrashHandler
var CrashLogDir = "./logs"

// InstallCrashHandler prepares the crash directory. Pair it with a deferred RecoverWithCrashFile in main.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create log directory: %v\n", err)
	}
}

// crashReport renders the report body
func crashReport(at time.Time, panicVal interface{}, stackTrace string) []byte {
	var report bytes.Buffer

	report.WriteString("=== AUTOBOND CRASH REPORT ===\n")
	report.WriteString(fmt.Sprintf("Time: %s\n", at.Format(time.RFC3339)))
	report.WriteString(fmt.Sprintf("Version: %s\n", GetFullVersion()))
	report.WriteString(fmt.Sprintf("Args: %v\n", os.Args[1:]))
	report.WriteString("\n")

	report.WriteString("=== PANIC VALUE ===\n")
	report.WriteString(fmt.Sprintf("%v\n\n", panicVal))

	report.WriteString("=== STACK TRACE ===\n")
	report.WriteString(stackTrace)
	report.WriteString("\n")

	report.WriteString("=== ALL GOROUTINES ===\n")
	report.WriteString(allGoroutineStacks())
	report.WriteString("\n")

	report.WriteString("=== SYSTEM INFO ===\n")
	report.WriteString(fmt.Sprintf("NumGoroutine: %d\n", runtime.NumGoroutine()))
	report.WriteString(fmt.Sprintf("GOOS/GOARCH: %s/%s\n", runtime.GOOS, runtime.GOARCH))
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	report.WriteString(fmt.Sprintf("Alloc: %d MB\n", memStats.Alloc/1024/1024))
	report.WriteString(fmt.Sprintf("Sys: %d MB\n", memStats.Sys/1024/1024))
	report.WriteString("=== END CRASH REPORT ===\n")

	return report.Bytes()
}

// WriteCrashFile writes crash-<timestamp>.log and returns its path, or "" when even that failed
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))
	report := crashReport(now, panicVal, stackTrace)

	file, err := os.OpenFile(crashPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create crash file: %v\n", err)
		os.Stderr.Write(report)
		return ""
	}
	if _, err := file.Write(report); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n", err)
		os.Stderr.Write(report)
	}
	file.Sync()
	file.Close()

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\n", crashPath)
	fmt.Fprintf(os.Stderr, "Panic: %v\n", panicVal)
	return crashPath
}

func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// RecoverWithCrashFile writes a crash file and exits 2 on panic.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		WriteCrashFile(r, string(buf[:n]))
		os.Exit(2)
	}
}
