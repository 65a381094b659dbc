// Command afdtranslate serves and drives the AFD translator.
//
// Usage:
//
//	afdtranslate serve [--config path]
//	afdtranslate translate [--section S] [--office O] < discussion.txt
//	afdtranslate validate <config-file>
//	afdtranslate history [--limit N] [--status CODE]
//	afdtranslate version
//
// The config file path defaults to $CONFIG_PATH. The upstream credential is
// read from the variable named by upstream.api_key_env on every cache miss.
package main
