// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

//go:build integration

package loader_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/bluefox-game/bluefox/internal/native"
	"github.com/bluefox-game/bluefox/internal/plugin"
	"github.com/bluefox-game/bluefox/internal/registry"
	"github.com/bluefox-game/bluefox/internal/toolchain"
)

// minLLVM is the first llc release that parses the opaque ptr fixtures.
const minLLVM = 15

var llvmVersion = regexp.MustCompile(`LLVM version (\d+)`)

// llcMajor returns the major LLVM version reported by llc --version.
func llcMajor() (int, bool) {
	out, err := exec.Command(toolchain.DefaultLLC, "--version").CombinedOutput()
	if err != nil {
		return 0, false
	}
	m := llvmVersion.FindSubmatch(out)
	if m == nil {
		return 0, false
	}
	major, err := strconv.Atoi(string(m[1]))
	return major, err == nil
}

// copyFixtures copies testdata files into a fresh plugin directory.
func copyFixtures(names ...string) string {
	dir := filepath.Join(GinkgoT().TempDir(), "plugins")
	Expect(os.MkdirAll(dir, 0o700)).To(Succeed())
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(dir, name), data, 0o600)).To(Succeed())
	}
	return dir
}

var _ = Describe("Loading plugins with the system toolchain", func() {
	var (
		ctx  context.Context
		ws   *toolchain.Workspace
		libs *registry.Registry
	)

	BeforeEach(func() {
		for _, tool := range []string{toolchain.DefaultLLC, toolchain.DefaultGCC} {
			if _, err := exec.LookPath(tool); err != nil {
				Skip(tool + " is not on PATH")
			}
		}
		major, ok := llcMajor()
		if !ok {
			Skip("cannot read the llc version")
		}
		if major < minLLVM {
			Skip("llc " + strconv.Itoa(major) + " predates opaque pointers; need LLVM " + strconv.Itoa(minLLVM) + " or later")
		}
		ctx = context.Background()
		ws = toolchain.NewWorkspace(GinkgoT().TempDir(), toolchain.DefaultWorkspacePrefix)
		libs = registry.New(native.DL{})
	})

	AfterEach(func() {
		if libs != nil {
			Expect(libs.Teardown()).To(Succeed())
		}
		if ws != nil {
			Expect(ws.Close()).To(Succeed())
		}
	})

	newManager := func(dir string) *plugin.Manager {
		compiler := toolchain.NewExternal(ws, toolchain.WithSupportLib("", ""))
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		return plugin.NewManager(dir, compiler, libs, plugin.WithLogger(logger))
	}

	It("extracts the name a compiled plugin reports", func() {
		report, err := newManager(copyFixtures("foo.bfps")).LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())

		descriptors := report.Descriptors()
		Expect(descriptors).To(HaveLen(1))
		Expect(descriptors[0].Name).To(Equal("Foo Plugin"))
		Expect(descriptors[0].Library).To(HaveSuffix("foo" + toolchain.DefaultNativeExt))
		Expect(libs.Len()).To(Equal(1))
	})

	It("keeps the name valid after the library is unloaded", func() {
		report, err := newManager(copyFixtures("foo.bfps")).LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(libs.Teardown()).To(Succeed())
		Expect(report.Descriptors()[0].Name).To(Equal("Foo Plugin"))
	})

	It("skips broken sources and keeps going", func() {
		report, err := newManager(copyFixtures("broken.bfps", "foo.bfps", "nosym.bfps")).LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Outcomes).To(HaveLen(3))

		broken := report.Outcomes[0]
		Expect(broken.State).To(Equal(plugin.StateFailed))
		Expect(broken.Kind).To(Equal(plugin.KindCompile))
		Expect(broken.FailedIn).To(Equal(plugin.StateCompilingToAssembly))

		Expect(report.Outcomes[1].State).To(Equal(plugin.StateDone))

		nosym := report.Outcomes[2]
		Expect(nosym.State).To(Equal(plugin.StateFailed))
		Expect(nosym.Kind).To(Equal(plugin.KindLoad))
		Expect(nosym.FailedIn).To(Equal(plugin.StateResolvingSymbol))

		Expect(libs.Len()).To(Equal(1), "only the successful candidate stays registered")
	})

	It("keeps sources that share a logical name apart", func() {
		dir := copyFixtures("f.bfpsoo", "foo.bfps")
		report, err := newManager(dir).LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())

		descriptors := report.Descriptors()
		Expect(descriptors).To(HaveLen(2))
		bySource := map[string]string{}
		for _, d := range descriptors {
			bySource[filepath.Base(d.Source)] = d.Name
		}
		Expect(bySource).To(Equal(map[string]string{
			"f.bfpsoo": "Bar Plugin",
			"foo.bfps": "Foo Plugin",
		}))
		Expect(descriptors[0].Library).NotTo(Equal(descriptors[1].Library))
	})

	It("registers the same source twice when loaded twice", func() {
		dir := copyFixtures("foo.bfps")
		m := newManager(dir)

		first, err := m.Load(ctx, filepath.Join(dir, "foo.bfps"))
		Expect(err).NotTo(HaveOccurred())
		second, err := m.Load(ctx, filepath.Join(dir, "foo.bfps"))
		Expect(err).NotTo(HaveOccurred())

		Expect(first.Index).To(Equal(0))
		Expect(second.Index).To(Equal(1))
		Expect(second.Name).To(Equal("Foo Plugin"))
		Expect(second.Library).NotTo(Equal(first.Library))
	})

	It("reports a missing compiler without invoking anything", func() {
		compiler := toolchain.NewExternal(ws,
			toolchain.WithTools("bluefox-no-such-llc", ""),
			toolchain.WithSupportLib("", ""))
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		m := plugin.NewManager(copyFixtures("foo.bfps"), compiler, libs, plugin.WithLogger(logger))

		report, err := m.LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Outcomes).To(HaveLen(1))
		Expect(report.Outcomes[0].Kind).To(Equal(plugin.KindCompilerNotFound))
		Expect(report.Descriptors()).To(BeEmpty())
	})
})
