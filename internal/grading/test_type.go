package grading

import (
	"regexp"
	"strings"

	"github.com/noah-isme/gema-grader/internal/models"
)

// Structural tests are generated by the structure oracle and follow fixed names.
var structuralTestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^testClass\[.*\]$`),
	regexp.MustCompile(`^testAttributes\[.*\]$`),
	regexp.MustCompile(`^testConstructors\[.*\]$`),
	regexp.MustCompile(`^testMethods\[.*\]$`),
}

// ClassifyTestCase returns the test type for a test name in the given language.
func ClassifyTestCase(language models.ProgrammingLanguage, testName string) models.TestCaseType {
	if !language.IsJavaLike() {
		return models.TestCaseTypeDefault
	}

	methodName := testName
	if idx := strings.Index(methodName, "("); idx >= 0 {
		methodName = methodName[:idx]
	}
	methodName = strings.TrimSpace(methodName)

	for _, pattern := range structuralTestPatterns {
		if pattern.MatchString(methodName) {
			return models.TestCaseTypeStructural
		}
	}
	return models.TestCaseTypeBehavioral
}

// ClassifyTestCases sets the type of every test case in place.
func ClassifyTestCases(language models.ProgrammingLanguage, testCases []models.TestCase) {
	for i := range testCases {
		testCases[i].Type = ClassifyTestCase(language, testCases[i].TestName)
	}
}
