package analyzer

// Tree-sitter node kinds consumed by the extractor and the query engine.
const (
	KindFunctionDefinition  = "function_definition"
	KindCallWithBrackets    = "call_expression_with_args_with_brackets"
	KindCallWithoutBrackets = "call_expression_with_args_without_brackets"
	KindCallWithVariable    = "call_expression_with_variable"
	KindCallWithSpacedArgs  = "call_expression_with_spaced_args"
	KindCallRecursive       = "call_expression_recursive"
	KindMethodInvocation    = "method_invocation"
	KindPackageStatement    = "package_statement"
	KindPackageName         = "package_name"
	KindUseNoStatement      = "use_no_statement"
	KindUseNoIfStatement    = "use_no_if_statement"
	KindBarewordImport      = "bareword_import"
	KindUseNoSubsStatement  = "use_no_subs_statement"
	KindUseNoFeature        = "use_no_feature_statement"
	KindUseNoVersion        = "use_no_version"
	KindWordListQW          = "word_list_qw"
	KindScalarVariable      = "scalar_variable"
	KindArrayVariable       = "array_variable"
	KindHashVariable        = "hash_variable"
	KindSpecialScalar       = "special_scalar_variable"
	KindTypeglob            = "typeglob"
	KindBlock               = "block"
	KindScope               = "scope"
)

// Node fields.
const (
	FieldName         = "name"
	FieldFunctionName = "function_name"
	FieldPackageName  = "package_name"
)

// IsCallKind reports whether the kind is one of the call-site node kinds.
func IsCallKind(kind string) bool {
	switch kind {
	case KindCallWithBrackets, KindCallWithoutBrackets, KindCallWithVariable,
		KindCallWithSpacedArgs, KindCallRecursive, KindMethodInvocation:
		return true
	}
	return false
}
