//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Format runs gofmt on all Go files
func Format() error {
	fmt.Println("Running gofmt...")
	return sh.RunV("gofmt", "-w", ".")
}

// Vet runs go vet on all packages
func Vet() error {
	fmt.Println("Running go vet...")
	return sh.RunV("go", "vet", "./...")
}

// Test runs all tests
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "./...")
}

// Build builds all packages and the plsc binary
func Build() error {
	fmt.Println("Building packages...")
	if err := sh.RunV("go", "build", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", "plsc", "./cmd/plsc")
}

// Examples compiles every example layout without writing output
func Examples() error {
	fmt.Println("Compiling example layouts...")
	examples := []string{"cross.pls", "pads.pls", "chiplabel.pls"}
	for _, example := range examples {
		if err := sh.RunV("go", "run", "./cmd/plsc", "-n", "-f", "examples/"+example); err != nil {
			return fmt.Errorf("failed to compile %s: %w", example, err)
		}
	}
	return nil
}

// PreCommit runs all pre-commit checks (format, vet, test, build)
func PreCommit() error {
	fmt.Println("Running pre-commit checks...")
	mg.Deps(Format)
	mg.Deps(Vet)
	mg.Deps(Test)
	mg.Deps(Build)
	fmt.Println("✓ All pre-commit checks passed!")
	return nil
}

// Clean removes build artifacts and cache files
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	patterns := []string{
		"plsc",
		"*.test",
		"examples/.*.plb",
		"examples/*.gds",
		"examples/*.pdf",
	}
	for _, pattern := range patterns {
		if err := sh.Run("sh", "-c", "rm -f "+pattern); err != nil {
			fmt.Printf("Warning: failed to clean %s: %v\n", pattern, err)
		}
	}
	fmt.Println("✓ Clean complete!")
	return nil
}

// Default target runs PreCommit
var Default = PreCommit
