package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// waitTimeoutMarker prefixes the rejection message of the wait script so a
// timeout can be told apart from other script errors.
const waitTimeoutMarker = "timed out waiting for selector "

const clickScript = `(() => {
	const sel = %[1]s;
	const el = document.querySelector(sel);
	if (!el) {
		throw new Error("element not found: " + sel);
	}
	if (el.scrollIntoView) {
		el.scrollIntoView({block: "center", inline: "center"});
	}
	el.click();
	return true;
})()`

const typeScript = `(() => {
	const sel = %[1]s;
	const text = %[2]s;
	const el = document.querySelector(sel);
	if (!el) {
		throw new Error("element not found: " + sel);
	}
	el.focus();
	const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), "value");
	if (desc && desc.set) {
		desc.set.call(el, text);
	} else if ("value" in el) {
		el.value = text;
	} else {
		el.textContent = text;
	}
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return true;
})()`

const waitForSelectorScript = `new Promise((resolve, reject) => {
	const sel = %[1]s;
	if (document.querySelector(sel)) {
		resolve(true);
		return;
	}
	let timer;
	const observer = new MutationObserver(() => {
		if (document.querySelector(sel)) {
			observer.disconnect();
			clearTimeout(timer);
			resolve(true);
		}
	});
	observer.observe(document.documentElement || document, {childList: true, subtree: true, attributes: true});
	timer = setTimeout(() => {
		observer.disconnect();
		reject(new Error(%[2]s + sel));
	}, %[3]d);
})`

const contentScript = `document.documentElement ? document.documentElement.outerHTML : ""`

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s) // marshaling a string cannot fail
	return string(b)
}

func clickExpression(selector string) string {
	return fmt.Sprintf(clickScript, jsString(selector))
}

func typeExpression(selector, text string) string {
	return fmt.Sprintf(typeScript, jsString(selector), jsString(text))
}

func waitForSelectorExpression(selector string, timeout time.Duration) string {
	return fmt.Sprintf(waitForSelectorScript, jsString(selector), jsString(waitTimeoutMarker), timeout.Milliseconds())
}

// applyExpression calls the function expression fn with args.
func applyExpression(fn string, args []any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding script arguments: %w", err)
	}
	return fmt.Sprintf("(%s).apply(null, %s)", fn, b), nil
}
